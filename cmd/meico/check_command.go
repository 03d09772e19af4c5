package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meico/internal/deps"
	"meico/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report engine dependencies and scratch directory health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			results := preflight.RunAll(cmd.Context(), cfg)

			rows := make([][]string, 0, len(statuses)+len(results))
			for _, s := range statuses {
				rows = append(rows, []string{s.Name, yesNo(s.Available), detailOr(s.Detail, s.Command)})
			}
			for _, r := range results {
				rows = append(rows, []string{r.Name, yesNo(r.Passed), r.Detail})
			}
			if isTerminal(out) {
				fmt.Fprintln(out, renderTable([]string{"Check", "OK", "Detail"}, rows, nil))
			} else {
				for _, row := range rows {
					fmt.Fprintf(out, "%s: %s (%s)\n", row[0], row[1], row[2])
				}
			}

			if err := deps.Missing(statuses); err != nil {
				return err
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d environment check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "Ready to convert.")
			return nil
		},
	}
}

func detailOr(detail, fallback string) string {
	if detail != "" {
		return detail
	}
	return fallback
}
