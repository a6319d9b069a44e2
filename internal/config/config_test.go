package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnb-scheduler/internal/sched"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched/policy"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadBundledScenario(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "scenario.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "two-slice-fdd", s.Name)
	require.Len(t, s.UEs, 3)
	assert.Equal(t, uint16(0x4601), s.UEs[0].CRNTI)
	assert.Equal(t, 12, int(s.UEs[2].Traffic.CQI))
	assert.Equal(t, 20000.0, s.UEs[0].Traffic.DLBitrateKbps, "default traffic copied into UEs without their own")

	setups := s.CellSetups()
	require.Len(t, setups, 1)
	assert.Equal(t, 106, setups[0].Config.DLBandwidthRBs)
	require.Len(t, setups[0].Slices, 2)
	assert.Equal(t, policy.KindProportionalFair, setups[0].Slices[0].Policy)
	assert.Equal(t, 0.2, setups[0].Slices[1].MaxRBRatio)
	assert.Len(t, s.HARQOptions(), 1)

	uc := s.UEs[2].UEConfig()
	assert.Equal(t, model.RNTI(0x4603), uc.CRNTI)
	require.Len(t, uc.LogicalChannels, 1)
	assert.Equal(t, model.SliceID(1), uc.LogicalChannels[0].Slice)
	assert.Equal(t, model.AggregationLevel2, uc.SearchSpace.AggregationLevel)
}

func TestLoadJSONAppliesDefaults(t *testing.T) {
	p := writeFile(t, "s.json", `{"ues":[{"crnti":17}]}`)
	s, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 1000, s.Slots)
	assert.Equal(t, sched.DefaultExpertConfig(), s.ExpertConfig())
	require.Len(t, s.Cells, 1)
	cc := s.Cells[0].CoreConfig()
	assert.Equal(t, 4, cc.K1)
	assert.Equal(t, 160, cc.SIB1PeriodSlots)
	assert.Equal(t, uint8(15), s.UEs[0].Traffic.CQI)
	assert.Nil(t, s.HARQOptions())
}

func TestExplicitZeroOffsetsOverrideDefaults(t *testing.T) {
	p := writeFile(t, "s.yaml", `
cells:
  - index: 0
    k2: 0
    max_dl_retxs: 0
    sib1_period_slots: 0
    tdd: {period_slots: 10, dl_slots: 7, ul_slots: 2}
`)
	s, err := Load(p)
	require.NoError(t, err)
	cc := s.Cells[0].CoreConfig()
	assert.Equal(t, 0, cc.K2)
	assert.Equal(t, 0, cc.MaxDLRetxs)
	assert.Equal(t, 4, cc.MaxULRetxs)
	assert.Equal(t, 0, cc.SIB1PeriodSlots)
	require.NotNil(t, cc.TDD)
	assert.Equal(t, 7, cc.TDD.DLSlots)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"extension":        "",
		"bad yaml":         "cells: [",
		"dup cell":         "cells: [{index: 1}, {index: 1}]",
		"bad cell":         "cells: [{dl_bandwidth_rbs: 1000}]",
		"numerology":       "cells: [{index: 0}, {index: 1, numerology: 1}]",
		"dup slice":        "cells: [{slices: [{id: 1}, {id: 1}]}]",
		"slice ratio":      "cells: [{slices: [{id: 1, max_rb_ratio: 1.5}]}]",
		"policy":           "cells: [{slices: [{id: 1, policy: lottery}]}]",
		"crnti":            "ues: [{crnti: 0}]",
		"dup crnti":        "ues: [{crnti: 5}, {crnti: 5}]",
		"ue cell":          "ues: [{crnti: 5, cells: [3]}]",
		"al":               "ues: [{crnti: 5, aggregation_level: 3}]",
		"bler":             "ues: [{crnti: 5, traffic: {dl_bler: 2}}]",
		"cqi":              "ues: [{crnti: 5, traffic: {cqi: 16}}]",
		"expert":           "expert: {max_pdschs_per_slot: 1000}",
		"negative rate":    "default_traffic: {ul_bitrate_kbps: -1}\nues: [{crnti: 5}]",
		"start sfn":        "start_sfn: 1024",
		"negative timeout": "expert: {harq_timeout_slots: -2}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			file := "s.yaml"
			if name == "extension" {
				file = "s.toml"
			}
			_, err := Load(writeFile(t, file, body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvOverrides(t *testing.T) {
	env := writeFile(t, ".env", "GNB_SLOTS=42\nGNB_TRACE_DB=/tmp/run.db\n")
	t.Setenv("GNB_SLOTS", "")
	t.Setenv("GNB_TRACE_DB", "")
	require.NoError(t, os.Unsetenv("GNB_SLOTS"))
	require.NoError(t, os.Unsetenv("GNB_TRACE_DB"))
	require.NoError(t, LoadDotEnv(env))
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, LoadDotEnv(""))

	s, err := Load(writeFile(t, "s.yml", "slots: 7\n"))
	require.NoError(t, err)
	assert.Equal(t, 42, s.Slots)
	assert.Equal(t, "/tmp/run.db", s.Trace.Path)
}
