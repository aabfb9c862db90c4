package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/httpapi"
)

func newEnginesCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List registered engines and whether they have credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			infos := httpapi.ListEngines(store.EngineConfigs())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCONFIGURED\tMODEL")
			for _, e := range infos {
				model := e.Model
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.ID, e.Name, e.Configured, model)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
