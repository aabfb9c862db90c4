package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/constants"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/temporal"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/workflows"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an exported workflow history against the current workflow code",
		Long: `Replay checks that ResearchBriefWorkflow is still deterministic for a
recorded execution. Export a history with:

  temporal workflow show --workflow-id brief-<id> --output json > history.json

Examples:
  brief replay --history history.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if history == "" {
				return errors.New("--history is required")
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			replayer := worker.NewWorkflowReplayer()
			replayer.RegisterWorkflowWithOptions(workflows.ResearchBriefWorkflow, workflow.RegisterOptions{
				Name: constants.ResearchBriefWorkflow,
			})
			if err := replayer.ReplayWorkflowHistoryFromJSONFile(temporal.NewZapAdapter(logger), history); err != nil {
				return fmt.Errorf("replay %s: %w", history, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay ok: %s\n", history)
			return nil
		},
	}
	cmd.Flags().StringVar(&history, "history", "", "workflow history JSON file")
	return cmd
}
