package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/adapter"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/planner"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <question...>",
		Short: "Produce a briefing and print it as JSON",
		Long: `Run the full pipeline inline: plan, dispatch to all engines concurrently,
normalize and aggregate.

Examples:
  brief run "What are the main risks of deploying LLM agents in finance?"
  brief run --timeout 30s Does remote work reduce productivity`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, store, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			orch := orchestrator.New(
				adapter.Options{Timeout: conf.Engines.Timeout, Breaker: conf.Breakers.Engine},
				aggregator.Builder{IncludeFallbackDisagreements: conf.Engines.IncludeFallbackDisagreements},
				logger,
			)
			s, err := orch.Orchestrate(cmd.Context(), strings.Join(args, " "), store.EngineConfigs())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <question...>",
		Short: "Print the subquestions a question would be dispatched with",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := planner.Plan(strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, s := range subs {
				fmt.Fprintf(out, "%d. %s\n", i+1, s)
			}
			return nil
		},
	}
}
