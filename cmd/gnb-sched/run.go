package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnb-scheduler/internal/config"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
	"github.com/signalsfoundry/gnb-scheduler/internal/sim"
	"github.com/signalsfoundry/gnb-scheduler/internal/tracestore"
)

type runFlags struct {
	slots        int
	traceDB      string
	feedbackLoss float64
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario as fast as possible and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scn, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if f.slots > 0 {
				scn.Slots = f.slots
			}
			if cmd.Flags().Changed("trace-db") {
				scn.Trace.Path = f.traceDB
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScenario(ctx, scn, f, g.logger(cmd), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&f.slots, "slots", "n", 0, "number of slots to run (default from the scenario)")
	cmd.Flags().StringVar(&f.traceDB, "trace-db", "", "SQLite file recording every grant")
	cmd.Flags().Float64Var(&f.feedbackLoss, "feedback-loss", 0, "share of HARQ feedback dropped in [0, 1)")
	return cmd
}

func runScenario(ctx context.Context, scn *config.Scenario, f *runFlags, log logging.Logger, out io.Writer) error {
	if f.feedbackLoss < 0 || f.feedbackLoss >= 1 {
		return fmt.Errorf("%w: feedback loss %v", config.ErrInvalidConfig, f.feedbackLoss)
	}

	shutdown, err := observability.InitTracing(ctx, scn.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, log)

	metrics, err := observability.NewSchedulerCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	opts := []sim.RunnerOption{
		sim.WithRunnerLogger(log),
		sim.WithSchedulerCollector(metrics),
	}
	if f.feedbackLoss > 0 {
		opts = append(opts, sim.WithFeedbackOptions(sim.WithFeedbackLoss(f.feedbackLoss)))
	}

	var store *tracestore.Store
	if scn.Trace.Path != "" {
		store, err = tracestore.Open(ctx, scn.Trace.Path, tracestore.WithBatchSize(scn.Trace.BatchSize))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(context.WithoutCancel(ctx)); cerr != nil {
				log.Warn(ctx, "closing trace store failed", logging.Err(cerr))
			}
		}()
		opts = append(opts, sim.WithTraceStore(store))
	}

	r, err := sim.NewRunner(scn, opts...)
	if err != nil {
		return err
	}
	st, err := r.Run(ctx, scn.Slots)
	if err != nil {
		return err
	}
	writeStats(out, scn.Name, st)

	if store != nil {
		sum, err := store.Summarize(ctx, store.RunID())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "trace %s: run %s, %d slots with grants, %d dl + %d ul grants\n",
			scn.Trace.Path, sum.RunID, sum.Slots, sum.DLGrants, sum.ULGrants)
	}
	return nil
}

func writeStats(out io.Writer, name string, st sim.Stats) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scenario\t%s\n", name)
	fmt.Fprintf(tw, "slots\t%d\t(%s)\n", st.Slots, st.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "dl_grants\t%d\tretx %d\n", st.DLGrants, st.DLRetxs)
	fmt.Fprintf(tw, "ul_grants\t%d\tretx %d\n", st.ULGrants, st.ULRetxs)
	fmt.Fprintf(tw, "dl_bytes\t%d\toffered %d\n", st.DLBytes, st.OfferedDLBytes)
	fmt.Fprintf(tw, "ul_bytes\t%d\toffered %d\n", st.ULBytes, st.OfferedULBytes)
	fmt.Fprintf(tw, "broadcast\tsib %d\tpaging %d\n", st.SIBs, st.PagingGrants)
	fmt.Fprintf(tw, "harq_feedback\tack %d nack %d\tcrc ok %d fail %d\tlost %d\n",
		st.Feedback.ACKs, st.Feedback.NACKs, st.Feedback.CRCOKs, st.Feedback.CRCFails, st.Feedback.Lost)
	_ = tw.Flush()
}
