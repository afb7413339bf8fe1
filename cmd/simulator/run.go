package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/constellation-testbed/internal/httpapi"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/observability"
	"github.com/signalsfoundry/constellation-testbed/internal/sim"
	"github.com/signalsfoundry/constellation-testbed/timectrl"
)

var runSteps int

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the simulation",
	Long:    `Runs the simulation until --steps ticks have completed or the process is interrupted. The status API is served when metrics.addr is set.`,
	GroupID: "sim",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, runSteps)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runSteps, "steps", "s", 0, "stop after this many steps (0 runs until interrupted)")
}

func run(ctx context.Context, steps int) error {
	cfg, log, ctx, err := setup(ctx)
	if err != nil {
		return err
	}

	shutdown, err := observability.InitTracing(ctx, cfg.Tracer(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, log)

	metrics, err := observability.NewSimulationCollector(nil)
	if err != nil {
		return err
	}
	s, err := sim.New(ctx, cfg, sim.Options{Log: log, Metrics: metrics, Tracer: observability.Tracer()})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if addr := cfg.Metrics.Addr; addr != "" {
		handler := httpapi.NewRouter(s, s.Deployments(), metrics.Handler(), log)
		g.Go(func() error { return httpapi.Serve(ctx, addr, handler, log) })
	}
	g.Go(func() error {
		err := s.Run(ctx, steps)
		if errors.Is(err, timectrl.ErrManual) {
			// Manual mode only serves the status API.
			log.Info(ctx, "manual stepping; waiting for interrupt")
			<-ctx.Done()
			return nil
		}
		if err == nil && steps > 0 && cfg.Metrics.Addr != "" {
			log.Info(ctx, "run finished; status api stays up until interrupt",
				logging.Int("steps", steps))
			<-ctx.Done()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(ctx, "simulation stopped",
		logging.Any("sim_time", s.Clock().Now()),
		logging.Int("steps", int(s.Clock().Steps())),
	)
	return nil
}
