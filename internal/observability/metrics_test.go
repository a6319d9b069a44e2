package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOpsCollector(reg)
	require.NoError(t, err)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/gnbsched.ops.v1.SchedulerOps/GetCellStatus"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(2 * time.Millisecond)
		return "ok", nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SchedulerOps", "GetCellStatus", "OK")))
	assert.Equal(t, uint64(1), histogramSampleCount(t, reg, "gnb_ops_request_duration_seconds", map[string]string{
		"service": "SchedulerOps",
		"method":  "GetCellStatus",
	}))
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOpsCollector(reg)
	require.NoError(t, err)

	info := &grpc.UnaryServerInfo{FullMethod: "/gnbsched.ops.v1.SchedulerOps/PushDLBufferState"}
	_, _ = collector.UnaryServerInterceptor()(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SchedulerOps", "PushDLBufferState", "InvalidArgument")))
}

func TestMetricsHandlerExposesSchedulerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOpsCollector(reg)
	require.NoError(t, err)
	collector.SetSchedulerState(2, 17, 4242)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "gnb_cells 2")
	assert.Contains(t, body, "gnb_ues 17")
	assert.Contains(t, body, "gnb_last_slot_count 4242")
}

func TestCollectorsReuseExistingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSchedulerCollector(reg)
	require.NoError(t, err)
	second, err := NewSchedulerCollector(reg)
	require.NoError(t, err)

	first.ObserveSkipSlot(0, model.Downlink)
	second.ObserveSkipSlot(0, model.Downlink)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.SkippedSlots.WithLabelValues("0", "dl")))

	_, err = NewOpsCollector(reg)
	require.NoError(t, err)
	_, err = NewOpsCollector(reg)
	require.NoError(t, err)
}

func TestSchedulerCollectorCountsByCellAndDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSchedulerCollector(reg)
	require.NoError(t, err)

	c.ObserveGrants(1, model.Downlink, 2, 3, 40)
	c.ObserveGrants(1, model.Uplink, 0, 1, 12)
	c.ObserveAllocAttempts(1, model.Downlink, 6)
	c.ObserveAllocAttempts(1, model.Downlink, 0)
	c.ObserveHARQStarvation(1, model.Uplink)
	c.ObserveHARQTimeout(model.Downlink)
	c.ObserveHARQDiscard(model.Uplink)
	c.ObserveSlotDuration(1, 80*time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Grants.WithLabelValues("1", "dl", "retx")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Grants.WithLabelValues("1", "dl", "newtx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Grants.WithLabelValues("1", "ul", "newtx")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.RBs.WithLabelValues("1", "dl")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.RBs.WithLabelValues("1", "ul")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.AllocAttempts.WithLabelValues("1", "dl")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HARQStarvation.WithLabelValues("1", "ul")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HARQTimeouts.WithLabelValues("dl")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HARQDiscards.WithLabelValues("ul")))
	assert.Equal(t, uint64(1), histogramSampleCount(t, c.Gatherer(), "gnb_sched_slot_duration_seconds", map[string]string{"cell": "1"}))

	// No retx series is created for the UL pass without retransmissions.
	assert.Equal(t, 3, testutil.CollectAndCount(c.Grants))
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *SchedulerCollector
	assert.NotPanics(t, func() {
		c.ObserveGrants(0, model.Downlink, 1, 1, 1)
		c.ObserveAllocAttempts(0, model.Downlink, 1)
		c.ObserveSkipSlot(0, model.Uplink)
		c.ObserveHARQStarvation(0, model.Uplink)
		c.ObserveHARQTimeout(model.Downlink)
		c.ObserveHARQDiscard(model.Downlink)
		c.ObserveSlotDuration(0, time.Millisecond)
	})
	assert.Nil(t, c.Gatherer())

	var ops *OpsCollector
	ops.SetSchedulerState(1, 1, 1)
	assert.NotNil(t, ops.Handler())
}

func TestSplitMethod(t *testing.T) {
	svc, m := SplitMethod("/gnbsched.ops.v1.SchedulerOps/ListUEs")
	assert.Equal(t, "SchedulerOps", svc)
	assert.Equal(t, "ListUEs", m)

	svc, m = SplitMethod("weird")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "weird", m)
}

func TestTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
	defer ShutdownWithTimeout(context.Background(), shutdown, nil)

	_, span := StartSlotSpan(context.Background(), model.NewSlotPoint(1, 3, 7))
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestTracingStdoutExportsSlotSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	require.NoError(t, err)

	_, span := StartSlotSpan(context.Background(), model.NewSlotPoint(1, 3, 7))
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, trace.FlagsSampled, span.SpanContext().TraceFlags()&trace.FlagsSampled)
	span.End()

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.True(t, strings.Contains(out, "gnb.slot"), out)
	assert.Contains(t, out, "slot.sfn")

	_, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	assert.Error(t, err)
	_, _ = InitTracing(context.Background(), TracingConfig{}, nil)
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("GNB_TRACING_ENABLED", "TRUE")
	t.Setenv("GNB_TRACING_EXPORTER", "OTLP")
	t.Setenv("GNB_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("GNB_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otlp", cfg.Exporter)
	assert.Equal(t, "gnb-sched", cfg.ServiceName)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "collector:4317", cfg.Endpoint)

	t.Setenv("GNB_TRACING_SAMPLE_RATIO", "7")
	assert.Equal(t, 1.0, TracingConfigFromEnv().SampleRatio)
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
