package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// OpsCollector records request counts and latencies for the operations gRPC
// surface, plus a few gauges describing the running scheduler.
type OpsCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Cells       prometheus.Gauge
	UEs         prometheus.Gauge
	LastSlotIdx prometheus.Gauge
}

// NewOpsCollector registers the ops metrics against reg. A nil registerer
// falls back to the Prometheus default registry.
func NewOpsCollector(reg prometheus.Registerer) (*OpsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_ops_requests_total",
		Help: "Total number of ops gRPC requests, labelled by service, method and status code.",
	}, []string{"service", "method", "code"}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnb_ops_request_duration_seconds",
		Help:    "Latency of ops gRPC requests, labelled by service and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method"}))
	if err != nil {
		return nil, err
	}

	cells, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnb_cells",
		Help: "Number of cells configured in the scheduler.",
	}))
	if err != nil {
		return nil, err
	}
	ues, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnb_ues",
		Help: "Number of UEs admitted by the scheduler.",
	}))
	if err != nil {
		return nil, err
	}
	lastSlot, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnb_last_slot_count",
		Help: "Absolute slot count of the most recently scheduled slot.",
	}))
	if err != nil {
		return nil, err
	}

	return &OpsCollector{
		gatherer:     gatherer,
		RPCRequests:  requests,
		RPCDurations: durations,
		Cells:        cells,
		UEs:          ues,
		LastSlotIdx:  lastSlot,
	}, nil
}

// SetSchedulerState updates the scheduler gauges.
func (c *OpsCollector) SetSchedulerState(cells, ues int, slotCount uint32) {
	if c == nil {
		return
	}
	c.Cells.Set(float64(cells))
	c.UEs.Set(float64(ues))
	c.LastSlotIdx.Set(float64(slotCount))
}

// UnaryServerInterceptor records per-RPC metrics.
func (c *OpsCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		service, method := SplitMethod(info.FullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler exposes the registry over HTTP for scraping.
func (c *OpsCollector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// SplitMethod breaks a gRPC full method ("/pkg.Service/Method") into its short
// service name and method.
func SplitMethod(fullMethod string) (string, string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(trimmed, "/")
	if !ok {
		return "unknown", trimmed
	}
	if idx := strings.LastIndex(service, "."); idx >= 0 {
		service = service[idx+1:]
	}
	return service, method
}

// register adds col to reg, returning the already registered collector when
// one with the same descriptor exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return col, nil
}
