package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/sim"
)

type routeOptions struct {
	from    string
	to      string
	service string
	steps   int
}

var routeOpts routeOptions

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Query a route after stepping the simulation",
	Example: `  simulator route --from Vienna --to Sydney --steps 10
  simulator route --from Vienna --service detect`,
	GroupID: "sim",
	RunE: func(cmd *cobra.Command, args []string) error {
		return route(cmd.Context(), cmd.OutOrStdout(), routeOpts)
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringVar(&routeOpts.from, "from", "", "name of the source node")
	routeCmd.Flags().StringVar(&routeOpts.to, "to", "", "name of the target node")
	routeCmd.Flags().StringVar(&routeOpts.service, "service", "", "route to the nearest host of this service")
	routeCmd.Flags().IntVar(&routeOpts.steps, "steps", 0, "steps to advance before querying")
	_ = routeCmd.MarkFlagRequired("from")
	routeCmd.MarkFlagsOneRequired("to", "service")
	routeCmd.MarkFlagsMutuallyExclusive("to", "service")
}

func route(ctx context.Context, out io.Writer, opts routeOptions) error {
	if opts.steps < 0 {
		return errors.New("--steps must not be negative")
	}
	cfg, log, ctx, err := setup(ctx)
	if err != nil {
		return err
	}
	s, err := sim.New(ctx, cfg, sim.Options{Log: log})
	if err != nil {
		return err
	}
	for range opts.steps {
		if _, err := s.Step(ctx); err != nil {
			return err
		}
	}

	var res routing.RouteResult
	if opts.to != "" {
		res, err = s.Route(ctx, opts.from, opts.to)
	} else {
		res, err = s.RouteToService(ctx, opts.from, opts.service)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sim.View(opts.from, opts.to, opts.service, res))
}
