package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect registered targets",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered target",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		targets, err := services.Scans.ListTargets(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(targets) == 0 {
			fmt.Fprintln(out, colorWarn("No targets registered yet."))
			return nil
		}
		tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TARGET\tURL\tCREATED\tDESCRIPTION")
		for _, t := range targets {
			desc := t.Description()
			if desc == "" {
				desc = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID(), t.BaseURL(), formatShortTimestamp(t.CreatedAt()), desc)
		}
		return tw.Flush()
	},
}

var scanTypesCmd = &cobra.Command{
	Use:   "scan-types",
	Short: "List the available scan types",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
		for _, d := range scan.Known() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, d.Description)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", scan.TypeAll, "All Scans", "Runs every scan type (default)")
		return tw.Flush()
	},
}

func init() {
	targetsCmd.AddCommand(targetsListCmd)
	rootCmd.AddCommand(targetsCmd, scanTypesCmd)
}
