package sim

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnb-scheduler/internal/config"
	"github.com/signalsfoundry/gnb-scheduler/internal/eventq"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
	"github.com/signalsfoundry/gnb-scheduler/internal/tracestore"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

type recordingSink struct {
	dl   map[model.UEIndex]int
	bsr  map[model.UEIndex]int
	srs  int
	acks []bool
	crcs []bool
	cqis int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{dl: map[model.UEIndex]int{}, bsr: map[model.UEIndex]int{}}
}

func (s *recordingSink) HandleDLBufferState(idx model.UEIndex, _ model.LCID, bytes int) error {
	s.dl[idx] = bytes
	return nil
}

func (s *recordingSink) HandleULBSR(idx model.UEIndex, _ model.LCGID, bytes int) error {
	s.bsr[idx] = bytes
	return nil
}

func (s *recordingSink) HandleSR(model.UEIndex) error { s.srs++; return nil }

func (s *recordingSink) HandleDLACK(_ model.CellIndex, _ model.UEIndex, _ model.HARQID, ack bool) error {
	s.acks = append(s.acks, ack)
	return nil
}

func (s *recordingSink) HandleULCRC(_ model.CellIndex, _ model.UEIndex, _ model.HARQID, ok bool) error {
	s.crcs = append(s.crcs, ok)
	return nil
}

func (s *recordingSink) HandleCQI(model.CellIndex, model.UEIndex, uint8) error { s.cqis++; return nil }

func TestBytesPerSlot(t *testing.T) {
	assert.InDelta(t, 2500.0, BytesPerSlot(20000, 0), 1e-9)
	assert.InDelta(t, 1250.0, BytesPerSlot(20000, 1), 1e-9)
}

func TestArrivalsFollowTheMean(t *testing.T) {
	g := NewTrafficGenerator("arrivals", 100)
	for _, mean := range []float64{150, 5000} {
		total := 0
		const draws = 4000
		for i := 0; i < draws; i++ {
			total += g.arrivals(mean)
		}
		got := float64(total) / draws
		want := mean / 100
		assert.InEpsilon(t, want, got, 0.1, "mean %v", mean)
	}
	assert.Zero(t, g.arrivals(0))
}

func TestTrafficBuffersDrainWithGrants(t *testing.T) {
	g := NewTrafficGenerator("drain", 1000)
	sink := newRecordingSink()
	g.AddUE(UETraffic{UE: 3, LCID: 4, LCG: 1, DLBytesPerSlot: 50000, ULBytesPerSlot: 50000})
	g.AddUE(UETraffic{UE: 5, LCID: 4, LCG: 1})

	require.NoError(t, g.Tick(sink))
	dl, ul := g.Backlog(3)
	require.Positive(t, dl)
	require.Positive(t, ul)
	assert.Equal(t, dl, sink.dl[3])
	assert.Equal(t, 1, sink.srs, "first UL arrival raises an SR")
	assert.NotContains(t, sink.dl, model.UEIndex(5), "idle UE reports nothing")

	require.NoError(t, g.Tick(sink))
	assert.Equal(t, 1, sink.srs, "no second SR while the first is outstanding")

	dl, ul = g.Backlog(3)
	res := &model.SlotResult{
		DL: model.DLResult{UEGrants: []model.DLGrant{
			{UEIndex: 3, TBSBytes: 1000},
			{UEIndex: 3, TBSBytes: 5000, IsRetx: true},
		}},
		UL: model.ULResult{PUSCHs: []model.ULGrant{{UEIndex: 3, TBSBytes: 2000}}},
	}
	require.NoError(t, g.OnResults(res, sink))
	gotDL, gotUL := g.Backlog(3)
	assert.Equal(t, max(dl-1000, 0), gotDL, "retransmissions do not drain the buffer")
	assert.Equal(t, max(ul-2000, 0), gotUL)
	assert.Equal(t, gotUL, sink.bsr[3], "PUSCH carries a BSR")

	g.RemoveUE(3)
	dl, ul = g.Backlog(3)
	assert.Zero(t, dl+ul)
	assert.Positive(t, g.OfferedDLBytes)
}

func TestFeedbackDeliveredAtAckSlot(t *testing.T) {
	q := eventq.New()
	sink := newRecordingSink()
	f := NewFeedbackEmulator("fb", q, sink, WithCRCDelay(2))
	f.SetChannel(0, Channel{DLBLER: 0, ULBLER: 1})
	f.SetChannel(1, Channel{DLBLER: 1, ULBLER: 0})

	sl := model.NewSlotPoint(0, 100, 0)
	res := &model.SlotResult{
		Slot: sl,
		DL: model.DLResult{UEGrants: []model.DLGrant{
			{UEIndex: 0, HARQID: 1, AckSlot: sl.Add(4)},
			{UEIndex: 1, HARQID: 2, AckSlot: sl.Add(4)},
		}},
		UL: model.ULResult{PUSCHs: []model.ULGrant{{UEIndex: 0}, {UEIndex: 1}}},
	}
	f.OnResults(0, res)
	assert.Equal(t, 4, q.Len())

	q.RunDue(sl.Add(1))
	assert.Empty(t, sink.crcs)
	q.RunDue(sl.Add(2))
	assert.Equal(t, []bool{false, true}, sink.crcs)
	q.RunDue(sl.Add(3))
	assert.Empty(t, sink.acks)
	q.RunDue(sl.Add(4))
	assert.Equal(t, []bool{true, false}, sink.acks)
	assert.Equal(t, FeedbackStats{ACKs: 1, NACKs: 1, CRCOKs: 1, CRCFails: 1}, f.Stats)
}

func TestFeedbackLossAndCQI(t *testing.T) {
	q := eventq.New()
	sink := newRecordingSink()
	f := NewFeedbackEmulator("loss", q, sink, WithFeedbackLoss(1), WithCQIPeriod(10))
	f.SetChannel(0, Channel{CQI: 9})
	f.SetChannel(1, Channel{})

	sl := model.NewSlotPoint(0, 1, 0)
	f.OnResults(0, &model.SlotResult{Slot: sl, DL: model.DLResult{UEGrants: []model.DLGrant{{AckSlot: sl.Add(4)}}}})
	assert.Zero(t, q.Len())
	assert.Equal(t, 1, f.Stats.Lost)

	f.ReportCQI(sl)
	assert.Equal(t, 1, sink.cqis, "UEs without a CQI do not report")
	f.ReportCQI(sl.Add(3))
	assert.Equal(t, 1, sink.cqis)
	f.RemoveUE(0)
	f.ReportCQI(sl.Add(10))
	assert.Equal(t, 1, sink.cqis)
}

func testScenario(t *testing.T, bler float64) *config.Scenario {
	t.Helper()
	s := &config.Scenario{
		Name: t.Name(),
		Cells: []config.Cell{{
			Slices: []config.Slice{{ID: 0, Name: "embb"}},
		}},
		Traffic: config.Traffic{DLBitrateKbps: 10000, ULBitrateKbps: 1000, DLBLER: bler, ULBLER: bler},
		UEs: []config.UE{
			{CRNTI: 0x4601},
			{CRNTI: 0x4602, Bearers: []config.Bearer{{LCID: 5, LCG: 2, Slice: 0}}},
		},
	}
	s.ApplyDefaults()
	require.NoError(t, s.Validate())
	return s
}

func TestRunnerEndToEnd(t *testing.T) {
	ctx := context.Background()
	scn := testScenario(t, 0)

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewSchedulerCollector(reg)
	require.NoError(t, err)
	ops, err := observability.NewOpsCollector(reg)
	require.NoError(t, err)
	store, err := tracestore.Open(ctx, ":memory:", tracestore.WithBatchSize(50))
	require.NoError(t, err)
	defer store.Close(ctx)

	r, err := NewRunner(scn,
		WithSchedulerCollector(metrics),
		WithOpsCollector(ops),
		WithTraceStore(store),
	)
	require.NoError(t, err)

	st, err := r.Run(ctx, 200)
	require.NoError(t, err)

	assert.Equal(t, 200, st.Slots)
	assert.Equal(t, store.RunID(), st.RunID)
	assert.Equal(t, 2, st.SIBs, "SIB1 at slot counts 0 and 160")
	assert.Positive(t, st.DLGrants)
	assert.Positive(t, st.ULGrants)
	assert.Zero(t, st.DLRetxs, "no retransmissions without block errors")
	assert.Zero(t, st.ULRetxs)
	assert.Positive(t, st.Feedback.ACKs)
	assert.Zero(t, st.Feedback.NACKs)
	assert.Positive(t, st.OfferedDLBytes)
	assert.Positive(t, st.DLBytes)

	dlNewTx := testutil.ToFloat64(metrics.Grants.WithLabelValues("0", "dl", "newtx"))
	assert.Equal(t, float64(st.DLGrants), dlNewTx)
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.UEs))
	assert.Equal(t, 199.0, testutil.ToFloat64(ops.LastSlotIdx))

	sum, err := store.Summarize(ctx, store.RunID())
	require.NoError(t, err)
	assert.Equal(t, st.DLGrants, sum.DLGrants)
	assert.Equal(t, st.ULGrants, sum.ULGrants)

	ues := r.Scheduler().ListUEs()
	require.Len(t, ues, 2)
	assert.Equal(t, model.RNTI(0x4601), ues[0].CRNTI)
}

func TestRunnerRetransmitsUnderBlockErrors(t *testing.T) {
	r, err := NewRunner(testScenario(t, 0.3))
	require.NoError(t, err)
	st, err := r.Run(context.Background(), 400)
	require.NoError(t, err)
	assert.Positive(t, st.Feedback.NACKs)
	assert.Positive(t, st.DLRetxs)
}

func TestRunnerLostFeedbackTimesOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewSchedulerCollector(reg)
	require.NoError(t, err)

	r, err := NewRunner(testScenario(t, 0),
		WithSchedulerCollector(metrics),
		WithFeedbackOptions(WithFeedbackLoss(0.5)),
	)
	require.NoError(t, err)
	st, err := r.Run(context.Background(), 300)
	require.NoError(t, err)
	assert.Positive(t, st.Feedback.Lost)
	assert.Positive(t, testutil.ToFloat64(metrics.HARQTimeouts.WithLabelValues("dl")))
}

func TestRunnerStopsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store, err := tracestore.Open(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close(ctx))

	r, err := NewRunner(testScenario(t, 0), WithTraceStore(store))
	require.NoError(t, err)
	st, err := r.Run(ctx, 50)
	assert.ErrorIs(t, err, tracestore.ErrClosed)
	assert.Zero(t, st.Slots)
}

func TestRunnerRejectsUnknownSlice(t *testing.T) {
	scn := testScenario(t, 0)
	scn.UEs[1].Bearers[0].Slice = 9
	_, err := NewRunner(scn)
	assert.Error(t, err)
}
