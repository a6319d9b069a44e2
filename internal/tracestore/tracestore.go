// Package tracestore persists the grants of a scheduler run to SQLite.
package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("trace store closed")

// DefaultBatchSize is the number of rows buffered before a flush.
const DefaultBatchSize = 256

// Grant kinds stored in the kind column.
const (
	KindNewTx  = "newtx"
	KindRetx   = "retx"
	KindSIB    = "sib"
	KindRAR    = "rar"
	KindPaging = "paging"
)

// Row is one stored grant.
type Row struct {
	RunID     string
	SlotCount uint32
	SFN       uint32
	Slot      uint32
	Cell      model.CellIndex
	Direction string
	Kind      string
	RNTI      model.RNTI
	UEIndex   int
	HARQID    int
	RBStart   int
	RBStop    int
	MCS       uint8
	TBSBytes  int
	NofRetxs  int
}

// Query filters ListGrants. Zero fields match everything.
type Query struct {
	RunID     string
	Cell      *model.CellIndex
	Direction string
	Kind      string
	RNTI      model.RNTI
	Limit     int
}

// Summary aggregates one run.
type Summary struct {
	RunID    string
	Slots    int
	DLGrants int
	ULGrants int
	Retxs    int
	DLBytes  int64
	ULBytes  int64
}

// Store buffers grants and writes them in batched transactions. Safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	insert    *sql.Stmt
	runID     string
	batchSize int
	pending   []Row
	closed    bool
}

// Option customises Open.
type Option func(*Store)

// WithBatchSize sets the flush threshold.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.runID = id
		}
	}
}

// Open opens or creates the database at path. Every Store gets a fresh run id
// so several runs can share one file.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		runID:     xid.New().String(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps in-memory databases alive across statements.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.insert, err = db.PrepareContext(ctx, `
		INSERT INTO grants (run_id, slot_count, sfn, slot, cell, direction, kind, rnti,
			ue_index, harq_id, rb_start, rb_stop, mcs, tbs_bytes, nof_retxs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS grants (
			run_id     VARCHAR(32) NOT NULL,
			slot_count INTEGER     NOT NULL,
			sfn        INTEGER     NOT NULL,
			slot       INTEGER     NOT NULL,
			cell       INTEGER     NOT NULL,
			direction  VARCHAR(2)  NOT NULL,
			kind       VARCHAR(8)  NOT NULL,
			rnti       INTEGER     NOT NULL,
			ue_index   INTEGER     NOT NULL,
			harq_id    INTEGER     NOT NULL,
			rb_start   INTEGER     NOT NULL,
			rb_stop    INTEGER     NOT NULL,
			mcs        INTEGER     NOT NULL,
			tbs_bytes  INTEGER     NOT NULL,
			nof_retxs  INTEGER     NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS grants_run_slot_index ON grants (run_id, slot_count)`,
		`CREATE INDEX IF NOT EXISTS grants_rnti_index ON grants (rnti)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// RunID identifies the rows written by this store.
func (s *Store) RunID() string { return s.runID }

// RecordSlot buffers every grant of one cell's slot result.
func (s *Store) RecordSlot(ctx context.Context, cell model.CellIndex, res *model.SlotResult) error {
	sl := res.Slot
	base := Row{RunID: s.runID, SlotCount: sl.Count(), SFN: sl.SFN(), Slot: sl.SlotIndex(), Cell: cell}

	rows := make([]Row, 0, res.DL.NofPDSCHs()+len(res.UL.PUSCHs))
	for _, g := range res.DL.UEGrants {
		r := base
		r.Direction = model.Downlink.String()
		r.Kind = kindOf(g.IsRetx)
		r.RNTI, r.UEIndex, r.HARQID = g.RNTI, int(g.UEIndex), int(g.HARQID)
		r.RBStart, r.RBStop, r.MCS, r.TBSBytes, r.NofRetxs = g.RBs.Start, g.RBs.Stop, g.MCS, g.TBSBytes, g.NofRetxs
		rows = append(rows, r)
	}
	for _, list := range [][]model.BroadcastGrant{res.DL.SIBs, res.DL.RARGrants, res.DL.PagingGrants} {
		for _, g := range list {
			r := base
			r.Direction = model.Downlink.String()
			r.Kind = g.Kind.String()
			r.RNTI, r.UEIndex, r.HARQID = g.RNTI, -1, -1
			r.RBStart, r.RBStop = g.RBs.Start, g.RBs.Stop
			rows = append(rows, r)
		}
	}
	for _, g := range res.UL.PUSCHs {
		r := base
		r.Direction = model.Uplink.String()
		r.Kind = kindOf(g.IsRetx)
		r.RNTI, r.UEIndex, r.HARQID = g.RNTI, int(g.UEIndex), int(g.HARQID)
		r.RBStart, r.RBStop, r.MCS, r.TBSBytes, r.NofRetxs = g.RBs.Start, g.RBs.Stop, g.MCS, g.TBSBytes, g.NofRetxs
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending = append(s.pending, rows...)
	if len(s.pending) >= s.batchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

func kindOf(retx bool) string {
	if retx {
		return KindRetx
	}
	return KindNewTx
}

// Flush writes the buffered rows in one transaction.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.insert)
	for _, r := range s.pending {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.SlotCount, r.SFN, r.Slot, int(r.Cell), r.Direction, r.Kind,
			int(r.RNTI), r.UEIndex, r.HARQID, r.RBStart, r.RBStop, int(r.MCS), r.TBSBytes, r.NofRetxs); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert grant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.flushLocked(ctx)
	s.closed = true
	return errors.Join(err, s.insert.Close(), s.db.Close())
}

// ListGrants returns stored rows in slot order.
func (s *Store) ListGrants(ctx context.Context, q Query) ([]Row, error) {
	sqlStr := `SELECT run_id, slot_count, sfn, slot, cell, direction, kind, rnti, ue_index, harq_id,
		rb_start, rb_stop, mcs, tbs_bytes, nof_retxs FROM grants WHERE 1=1`
	var args []any
	if q.RunID != "" {
		sqlStr += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.Cell != nil {
		sqlStr += ` AND cell = ?`
		args = append(args, int(*q.Cell))
	}
	if q.Direction != "" {
		sqlStr += ` AND direction = ?`
		args = append(args, q.Direction)
	}
	if q.Kind != "" {
		sqlStr += ` AND kind = ?`
		args = append(args, q.Kind)
	}
	if q.RNTI != 0 {
		sqlStr += ` AND rnti = ?`
		args = append(args, int(q.RNTI))
	}
	sqlStr += ` ORDER BY rowid`
	if q.Limit > 0 {
		sqlStr += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r          Row
			cell, rnti int
			mcs        int
		)
		if err := rows.Scan(&r.RunID, &r.SlotCount, &r.SFN, &r.Slot, &cell, &r.Direction, &r.Kind, &rnti,
			&r.UEIndex, &r.HARQID, &r.RBStart, &r.RBStop, &mcs, &r.TBSBytes, &r.NofRetxs); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		r.Cell, r.RNTI, r.MCS = model.CellIndex(cell), model.RNTI(rnti), uint8(mcs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize aggregates the stored rows of a run.
func (s *Store) Summarize(ctx context.Context, runID string) (Summary, error) {
	sum := Summary{RunID: runID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sum, ErrClosed
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT slot_count),
			COALESCE(SUM(CASE WHEN direction = 'dl' AND kind IN ('newtx', 'retx') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'ul' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'retx' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'dl' THEN tbs_bytes ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'ul' THEN tbs_bytes ELSE 0 END), 0)
		FROM grants WHERE run_id = ?`, runID).
		Scan(&sum.Slots, &sum.DLGrants, &sum.ULGrants, &sum.Retxs, &sum.DLBytes, &sum.ULBytes)
	if err != nil {
		return sum, fmt.Errorf("summarize run %s: %w", runID, err)
	}
	return sum, nil
}
