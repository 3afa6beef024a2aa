package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	consts "github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

const (
	appName = "seca-scanner"

	// dataDirEnvVar overrides the XDG data directory.
	dataDirEnvVar = "SECA_SCANNER_DATA_DIR"
)

// getDataDir returns the directory holding the job database and reports.
// On Linux this is $XDG_DATA_HOME/seca-scanner, on macOS
// ~/Library/Application Support/seca-scanner and on Windows
// %LOCALAPPDATA%\seca-scanner.
func getDataDir() (string, error) {
	baseDir := os.Getenv(dataDirEnvVar)
	if baseDir == "" {
		baseDir = filepath.Join(xdg.DataHome, appName)
	}

	if err := os.MkdirAll(baseDir, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return baseDir, nil
}

// defaultConfigPath is where the config file is looked up when --config is not given.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".seca-scanner.yaml"
	}
	return filepath.Join(home, ".seca-scanner.yaml")
}
