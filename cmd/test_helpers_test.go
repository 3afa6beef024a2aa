package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-scanner/internal/application"
)

// setupTestAppContext installs an AppContext backed by in-memory stores and
// a temporary data directory.
func setupTestAppContext(t *testing.T) *AppContext {
	t.Helper()

	original := globalAppContext
	dataDir := t.TempDir()
	t.Setenv(dataDirEnvVar, dataDir)

	cfg := newCLIConfig()
	cfg.DataDir = dataDir
	cfg.Store = application.StoreMemory
	cfg.Operator = "test-operator"

	appCtx := &AppContext{
		Logger:   zaptest.NewLogger(t).Sugar(),
		Operator: "test-operator",
		Config:   cfg,
	}
	globalAppContext = appCtx
	t.Cleanup(func() {
		_ = appCtx.Close()
		globalAppContext = original
	})
	return appCtx
}

// runCommand invokes cmd's RunE with the app context and captures stdout.
func runCommand(t *testing.T, appCtx *AppContext, cmd *cobra.Command, args []string, flags map[string]string) (string, error) {
	t.Helper()

	cmd.SetContext(context.Background())
	storeAppContext(cmd, appCtx)

	for name, value := range flags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("unknown flag %q", name)
		}
		previous := flag.Value.String()
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set flag %s: %v", name, err)
		}
		t.Cleanup(func() {
			_ = flag.Value.Set(previous)
			flag.Changed = false
		})
	}

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})

	err := cmd.RunE(cmd, args)
	return buf.String(), err
}
