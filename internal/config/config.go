// Package config loads scenario files describing the cells, slices, UEs and
// traffic of a scheduler run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched/policy"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid scenario configuration")

// Expert holds the scheduler tuning knobs.
type Expert struct {
	MaxPDCCHAllocAttemptsPerSlot int `yaml:"max_pdcch_alloc_attempts_per_slot" json:"max_pdcch_alloc_attempts_per_slot"`
	MaxPDSCHsPerSlot             int `yaml:"max_pdschs_per_slot" json:"max_pdschs_per_slot"`
	MaxPUSCHsPerSlot             int `yaml:"max_puschs_per_slot" json:"max_puschs_per_slot"`
	HARQTimeoutSlots             int `yaml:"harq_timeout_slots" json:"harq_timeout_slots"`
}

type TDD struct {
	PeriodSlots int `yaml:"period_slots" json:"period_slots"`
	DLSlots     int `yaml:"dl_slots" json:"dl_slots"`
	ULSlots     int `yaml:"ul_slots" json:"ul_slots"`
}

type Slice struct {
	ID              uint8   `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	MaxRBRatio      float64 `yaml:"max_rb_ratio" json:"max_rb_ratio"`
	Priority        int     `yaml:"priority" json:"priority"`
	Policy          string  `yaml:"policy" json:"policy"`
	PFAlpha         float64 `yaml:"pf_alpha" json:"pf_alpha"`
	PFFairnessCoeff float64 `yaml:"pf_fairness_coeff" json:"pf_fairness_coeff"`
}

// Cell mirrors core.CellConfig. Zero fields take the defaults of
// core.DefaultCellConfig.
type Cell struct {
	Index          uint16  `yaml:"index" json:"index"`
	PCI            uint16  `yaml:"pci" json:"pci"`
	Numerology     uint8   `yaml:"numerology" json:"numerology"`
	DLBandwidthRBs int     `yaml:"dl_bandwidth_rbs" json:"dl_bandwidth_rbs"`
	ULBandwidthRBs int     `yaml:"ul_bandwidth_rbs" json:"ul_bandwidth_rbs"`
	CoresetCCEs    int     `yaml:"coreset_cces" json:"coreset_cces"`
	TDD            *TDD    `yaml:"tdd" json:"tdd"`
	K0             *int    `yaml:"k0" json:"k0"`
	K1             int     `yaml:"k1" json:"k1"`
	K2             *int    `yaml:"k2" json:"k2"`
	NofDLHARQs     int     `yaml:"nof_dl_harqs" json:"nof_dl_harqs"`
	NofULHARQs     int     `yaml:"nof_ul_harqs" json:"nof_ul_harqs"`
	MaxDLRetxs     *int    `yaml:"max_dl_retxs" json:"max_dl_retxs"`
	MaxULRetxs     *int    `yaml:"max_ul_retxs" json:"max_ul_retxs"`
	SIB1PeriodSlot *int    `yaml:"sib1_period_slots" json:"sib1_period_slots"`
	SIB1RBs        int     `yaml:"sib1_rbs" json:"sib1_rbs"`
	PagingRBs      int     `yaml:"paging_rbs" json:"paging_rbs"`
	Slices         []Slice `yaml:"slices" json:"slices"`
}

type Bearer struct {
	LCID  uint8 `yaml:"lcid" json:"lcid"`
	LCG   uint8 `yaml:"lcg" json:"lcg"`
	Slice uint8 `yaml:"slice" json:"slice"`
}

// Traffic describes the offered load and channel quality of a UE.
type Traffic struct {
	DLBitrateKbps float64 `yaml:"dl_bitrate_kbps" json:"dl_bitrate_kbps"`
	ULBitrateKbps float64 `yaml:"ul_bitrate_kbps" json:"ul_bitrate_kbps"`
	DLBLER        float64 `yaml:"dl_bler" json:"dl_bler"`
	ULBLER        float64 `yaml:"ul_bler" json:"ul_bler"`
	CQI           uint8   `yaml:"cqi" json:"cqi"`
}

type UE struct {
	CRNTI            uint16   `yaml:"crnti" json:"crnti"`
	Cells            []uint16 `yaml:"cells" json:"cells"`
	Bearers          []Bearer `yaml:"bearers" json:"bearers"`
	AggregationLevel uint8    `yaml:"aggregation_level" json:"aggregation_level"`
	Traffic          *Traffic `yaml:"traffic" json:"traffic"`
}

// TraceStore configures the optional grant trace database.
type TraceStore struct {
	Path      string `yaml:"path" json:"path"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

type Ops struct {
	GRPCAddr    string `yaml:"grpc_addr" json:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// Scenario is the root of a scenario file.
type Scenario struct {
	Name     string                      `yaml:"name" json:"name"`
	Slots    int                         `yaml:"slots" json:"slots"`
	StartSFN uint32                      `yaml:"start_sfn" json:"start_sfn"`
	Expert   Expert                      `yaml:"expert" json:"expert"`
	Cells    []Cell                      `yaml:"cells" json:"cells"`
	UEs      []UE                        `yaml:"ues" json:"ues"`
	Traffic  Traffic                     `yaml:"default_traffic" json:"default_traffic"`
	Trace    TraceStore                  `yaml:"trace" json:"trace"`
	Ops      Ops                         `yaml:"ops" json:"ops"`
	Tracing  observability.TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML or JSON scenario, chosen by file extension, applies
// defaults and environment overrides, and validates the result.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidConfig, path, err)
	}
	s.ApplyDefaults()
	s.ApplyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyEnv overrides selected fields from GNB_* environment variables.
func (s *Scenario) ApplyEnv() {
	if v, err := strconv.Atoi(os.Getenv("GNB_SLOTS")); err == nil && v > 0 {
		s.Slots = v
	}
	if v := os.Getenv("GNB_TRACE_DB"); v != "" {
		s.Trace.Path = v
	}
	if v := os.Getenv("GNB_GRPC_ADDR"); v != "" {
		s.Ops.GRPCAddr = v
	}
	if v := os.Getenv("GNB_METRICS_ADDR"); v != "" {
		s.Ops.MetricsAddr = v
	}
	if os.Getenv("GNB_TRACING_ENABLED") != "" {
		s.Tracing = observability.TracingConfigFromEnv()
	}
}

// ApplyDefaults fills unset fields.
func (s *Scenario) ApplyDefaults() {
	if s.Name == "" {
		s.Name = "default"
	}
	if s.Slots <= 0 {
		s.Slots = 1000
	}
	def := sched.DefaultExpertConfig()
	if s.Expert.MaxPDCCHAllocAttemptsPerSlot == 0 {
		s.Expert.MaxPDCCHAllocAttemptsPerSlot = def.MaxPDCCHAllocAttemptsPerSlot
	}
	if s.Expert.MaxPDSCHsPerSlot == 0 {
		s.Expert.MaxPDSCHsPerSlot = def.MaxPDSCHsPerSlot
	}
	if s.Expert.MaxPUSCHsPerSlot == 0 {
		s.Expert.MaxPUSCHsPerSlot = def.MaxPUSCHsPerSlot
	}
	if len(s.Cells) == 0 {
		s.Cells = []Cell{{}}
	}
	for i := range s.Cells {
		c := &s.Cells[i]
		for j := range c.Slices {
			sl := &c.Slices[j]
			if sl.MaxRBRatio == 0 {
				sl.MaxRBRatio = 1
			}
			if sl.Policy == "" {
				sl.Policy = string(policy.KindRoundRobin)
			}
		}
	}
	if s.Traffic.CQI == 0 {
		s.Traffic.CQI = 15
	}
	for i := range s.UEs {
		u := &s.UEs[i]
		if u.AggregationLevel == 0 {
			u.AggregationLevel = uint8(model.AggregationLevel2)
		}
		if u.Traffic == nil {
			t := s.Traffic
			u.Traffic = &t
		} else if u.Traffic.CQI == 0 {
			u.Traffic.CQI = s.Traffic.CQI
		}
	}
	if s.Trace.BatchSize <= 0 {
		s.Trace.BatchSize = 256
	}
	if s.Ops.GRPCAddr == "" {
		s.Ops.GRPCAddr = ":50061"
	}
	if s.Ops.MetricsAddr == "" {
		s.Ops.MetricsAddr = ":9464"
	}
}

// Validate checks cross-field constraints. Cell level checks are delegated to
// core.CellConfig.Validate.
func (s *Scenario) Validate() error {
	if s.StartSFN >= model.NofSFNs {
		return fmt.Errorf("%w: start_sfn %d", ErrInvalidConfig, s.StartSFN)
	}
	if s.Expert.MaxPDCCHAllocAttemptsPerSlot < 0 || s.Expert.MaxPDSCHsPerSlot < 0 ||
		s.Expert.MaxPUSCHsPerSlot < 0 || s.Expert.HARQTimeoutSlots < 0 {
		return fmt.Errorf("%w: negative expert setting", ErrInvalidConfig)
	}
	if s.Expert.MaxPDSCHsPerSlot > model.MaxDLPDUsPerSlot || s.Expert.MaxPUSCHsPerSlot > model.MaxPUSCHPDUsPerSlot {
		return fmt.Errorf("%w: per-slot grant limit above PDU list capacity", ErrInvalidConfig)
	}

	cells := make(map[uint16]Cell, len(s.Cells))
	for _, c := range s.Cells {
		if _, dup := cells[c.Index]; dup {
			return fmt.Errorf("%w: duplicate cell %d", ErrInvalidConfig, c.Index)
		}
		cells[c.Index] = c
		if c.Numerology != s.Cells[0].Numerology {
			return fmt.Errorf("%w: cell %d numerology %d differs from cell %d", ErrInvalidConfig, c.Index, c.Numerology, s.Cells[0].Index)
		}
		cc := c.CoreConfig()
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("%w: cell %d: %w", ErrInvalidConfig, c.Index, err)
		}
		ids := make(map[uint8]bool, len(c.Slices))
		for _, sl := range c.Slices {
			if ids[sl.ID] {
				return fmt.Errorf("%w: cell %d: duplicate slice %d", ErrInvalidConfig, c.Index, sl.ID)
			}
			ids[sl.ID] = true
			if sl.MaxRBRatio <= 0 || sl.MaxRBRatio > 1 {
				return fmt.Errorf("%w: cell %d slice %d: max_rb_ratio %v", ErrInvalidConfig, c.Index, sl.ID, sl.MaxRBRatio)
			}
			if _, err := policy.New(policy.Kind(sl.Policy), policy.Params{}); err != nil {
				return fmt.Errorf("%w: cell %d slice %d: %w", ErrInvalidConfig, c.Index, sl.ID, err)
			}
		}
	}

	rntis := make(map[uint16]bool, len(s.UEs))
	for i, u := range s.UEs {
		if u.CRNTI < uint16(model.MinCRNTI) || u.CRNTI > uint16(model.MaxCRNTI) {
			return fmt.Errorf("%w: ue %d: crnti %#x out of range", ErrInvalidConfig, i, u.CRNTI)
		}
		if rntis[u.CRNTI] {
			return fmt.Errorf("%w: ue %d: duplicate crnti %#x", ErrInvalidConfig, i, u.CRNTI)
		}
		rntis[u.CRNTI] = true
		for _, ci := range u.Cells {
			if _, ok := cells[ci]; !ok {
				return fmt.Errorf("%w: ue %#x: unknown cell %d", ErrInvalidConfig, u.CRNTI, ci)
			}
		}
		if !model.AggregationLevel(u.AggregationLevel).Valid() {
			return fmt.Errorf("%w: ue %#x: aggregation level %d", ErrInvalidConfig, u.CRNTI, u.AggregationLevel)
		}
		t := u.Traffic
		if t == nil {
			continue
		}
		if t.DLBitrateKbps < 0 || t.ULBitrateKbps < 0 {
			return fmt.Errorf("%w: ue %#x: negative bitrate", ErrInvalidConfig, u.CRNTI)
		}
		if t.DLBLER < 0 || t.DLBLER > 1 || t.ULBLER < 0 || t.ULBLER > 1 {
			return fmt.Errorf("%w: ue %#x: bler outside [0,1]", ErrInvalidConfig, u.CRNTI)
		}
		if t.CQI > 15 {
			return fmt.Errorf("%w: ue %#x: cqi %d", ErrInvalidConfig, u.CRNTI, t.CQI)
		}
	}
	return nil
}

// CoreConfig converts the cell section into a core.CellConfig.
func (c Cell) CoreConfig() core.CellConfig {
	cc := core.DefaultCellConfig(model.CellIndex(c.Index))
	if c.PCI != 0 {
		cc.PCI = c.PCI
	}
	cc.Numerology = c.Numerology
	setIfPositive(&cc.DLBandwidthRBs, c.DLBandwidthRBs)
	setIfPositive(&cc.ULBandwidthRBs, c.ULBandwidthRBs)
	setIfPositive(&cc.CoresetCCEs, c.CoresetCCEs)
	setIfPositive(&cc.K1, c.K1)
	setIfPositive(&cc.NofDLHARQs, c.NofDLHARQs)
	setIfPositive(&cc.NofULHARQs, c.NofULHARQs)
	setIfPositive(&cc.SIB1RBs, c.SIB1RBs)
	setIfPositive(&cc.PagingRBs, c.PagingRBs)
	setIfSet(&cc.K0, c.K0)
	setIfSet(&cc.K2, c.K2)
	setIfSet(&cc.MaxDLRetxs, c.MaxDLRetxs)
	setIfSet(&cc.MaxULRetxs, c.MaxULRetxs)
	setIfSet(&cc.SIB1PeriodSlots, c.SIB1PeriodSlot)
	if c.TDD != nil {
		cc.TDD = &core.TDDPattern{PeriodSlots: c.TDD.PeriodSlots, DLSlots: c.TDD.DLSlots, ULSlots: c.TDD.ULSlots}
	}
	return cc
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setIfSet(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// CellSetups returns the scheduler cell setups.
func (s *Scenario) CellSetups() []sched.CellSetup {
	out := make([]sched.CellSetup, 0, len(s.Cells))
	for _, c := range s.Cells {
		setup := sched.CellSetup{Config: c.CoreConfig()}
		for _, sl := range c.Slices {
			setup.Slices = append(setup.Slices, sched.SliceConfig{
				ID:         model.SliceID(sl.ID),
				Name:       sl.Name,
				MaxRBRatio: sl.MaxRBRatio,
				Priority:   sl.Priority,
				Policy:     policy.Kind(sl.Policy),
				Params:     policy.Params{PFAlpha: sl.PFAlpha, PFFairnessCoeff: sl.PFFairnessCoeff},
			})
		}
		out = append(out, setup)
	}
	return out
}

// ExpertConfig returns the intra-slice scheduler limits.
func (s *Scenario) ExpertConfig() sched.ExpertConfig {
	return sched.ExpertConfig{
		MaxPDCCHAllocAttemptsPerSlot: s.Expert.MaxPDCCHAllocAttemptsPerSlot,
		MaxPDSCHsPerSlot:             s.Expert.MaxPDSCHsPerSlot,
		MaxPUSCHsPerSlot:             s.Expert.MaxPUSCHsPerSlot,
	}
}

// Numerology returns the numerology shared by all cells.
func (s *Scenario) Numerology() uint8 {
	if len(s.Cells) == 0 {
		return 0
	}
	return s.Cells[0].Numerology
}

// HARQOptions returns the HARQ manager options implied by the expert section.
func (s *Scenario) HARQOptions() []harq.Option {
	if s.Expert.HARQTimeoutSlots > 0 {
		return []harq.Option{harq.WithTimeoutSlots(s.Expert.HARQTimeoutSlots)}
	}
	return nil
}

// UEConfig converts one UE section into a scheduler admission request.
func (u UE) UEConfig() sched.UEConfig {
	cfg := sched.UEConfig{
		CRNTI: model.RNTI(u.CRNTI),
		SearchSpace: ue.SearchSpace{
			AggregationLevel: model.AggregationLevel(u.AggregationLevel),
			PeriodSlots:      1,
		},
	}
	for _, c := range u.Cells {
		cfg.Cells = append(cfg.Cells, model.CellIndex(c))
	}
	for _, b := range u.Bearers {
		cfg.LogicalChannels = append(cfg.LogicalChannels, sched.LogicalChannelConfig{
			LCID:  model.LCID(b.LCID),
			LCG:   model.LCGID(b.LCG),
			Slice: model.SliceID(b.Slice),
		})
	}
	return cfg
}
