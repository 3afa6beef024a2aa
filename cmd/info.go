package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show system information and data directory paths",
	Long: `Display seca-scanner configuration information including:
  - Data directory locations
  - Configuration file path
  - Current operator
  - Platform information`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config

		database := cfg.Database
		if database != ":memory:" && !filepath.IsAbs(database) {
			database = filepath.Join(cfg.DataDir, database)
		}
		reportsDir := cfg.ReportsDir
		if reportsDir == "" {
			reportsDir = filepath.Join(cfg.DataDir, "reports")
		}
		configPath := cfgFile
		if configPath == "" {
			configPath = defaultConfigPath()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "seca-scanner System Information")
		fmt.Fprintln(out, "===============================")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Platform:          %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "Operator:          %s\n", appCtx.Operator)
		fmt.Fprintf(out, "Requester:         %s\n", appCtx.requester())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Data Locations:")
		fmt.Fprintf(out, "  Data Directory:     %s %s\n", cfg.DataDir, existsMarker(cfg.DataDir, "not created yet"))
		fmt.Fprintf(out, "  Job Store:          %s (%s) %s\n", database, cfg.Store, existsMarker(database, "not created yet"))
		fmt.Fprintf(out, "  Reports Directory:  %s %s\n", reportsDir, existsMarker(reportsDir, "not created yet"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Configuration File:   %s %s\n", configPath, existsMarker(configPath, "using defaults"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "To override the data directory, set %s or add to the config file:\n", dataDirEnvVar)
		fmt.Fprintln(out, "  data_dir: /custom/path")
		return nil
	},
}

func existsMarker(path, missing string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓ (exists)"
	}
	return "✗ (" + missing + ")"
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
