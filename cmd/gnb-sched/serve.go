package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnb-scheduler/internal/config"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
	"github.com/signalsfoundry/gnb-scheduler/internal/ops"
	"github.com/signalsfoundry/gnb-scheduler/internal/sim"
	"github.com/signalsfoundry/gnb-scheduler/timectrl"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var grpcAddr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler in real time with the ops gRPC service and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scn, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-addr") {
				scn.Ops.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				scn.Ops.MetricsAddr = metricsAddr
			}
			log := g.logger(cmd)

			lis, err := net.Listen("tcp", scn.Ops.GRPCAddr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, scn, log, lis)
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "TCP address of the ops gRPC service (default from the scenario)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics, empty to disable")
	return cmd
}

// serve runs the scenario in real time until ctx is done, exposing the ops
// service on lis.
func serve(ctx context.Context, scn *config.Scenario, log logging.Logger, lis net.Listener) error {
	shutdown, err := observability.InitTracing(ctx, scn.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, log)

	reg := prometheus.NewRegistry()
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return err
	}
	opsMetrics, err := observability.NewOpsCollector(reg)
	if err != nil {
		return err
	}

	r, err := sim.NewRunner(scn,
		sim.WithRunnerLogger(log),
		sim.WithSchedulerCollector(schedMetrics),
		sim.WithOpsCollector(opsMetrics),
		sim.WithClockMode(timectrl.RealTime),
	)
	if err != nil {
		return err
	}

	srv := ops.NewServer(r.Scheduler(), ops.WithServerLogger(log), ops.WithOpsCollector(opsMetrics))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()

	metricsSrv := serveMetrics(scn.Ops.MetricsAddr, opsMetrics, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		_, err := r.Run(runCtx, 0)
		runErr <- err
	}()

	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-serveErr:
		log.Error(ctx, "ops server exited", logging.Err(firstErr))
	}
	cancel()
	if err := <-runErr; err != nil && firstErr == nil {
		firstErr = err
	}

	log.Info(context.Background(), "shutting down", logging.Int("slots", r.Stats().Slots))
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	srv.Stop(stopCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(stopCtx)
	}
	return firstErr
}

func serveMetrics(addr string, collector *observability.OpsCollector, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
