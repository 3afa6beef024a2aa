package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile  string
	operator string
	debug    bool

	// logLevel is shared by every logger of the invocation; serve raises it to info.
	logLevel = zap.NewAtomicLevelAt(zapcore.WarnLevel)
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "SSRF-safe web security scanner",
	Long:          "Queue and run security header, TLS, cookie, script and CORS scans of public websites, and render their reports.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := newCLIConfig()
		v := viper.New()
		if err := loadConfigFile(v, cfgFile); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		cfg.applyConfig(v)

		if cfg.DataDir == "" {
			dir, err := getDataDir()
			if err != nil {
				return err
			}
			cfg.DataDir = dir
		}
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}

		if operator == "" {
			operator = cfg.Operator
		}
		if operator == "" {
			return fmt.Errorf("operator identity is required (use --operator or set USER env)")
		}
		cfg.Operator = operator

		logger, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		storeAppContext(cmd, &AppContext{
			Logger:   logger.Sugar(),
			Operator: operator,
			Config:   cfg,
		})
		logger.Debug("configuration loaded",
			zap.String("operator", operator),
			zap.String("data_dir", cfg.DataDir),
			zap.String("store", cfg.Store))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		if appCtx == nil {
			return nil
		}
		if appCtx.Logger != nil {
			_ = appCtx.Logger.Sync()
		}
		return appCtx.Close()
	},
}

// newLogger writes JSON logs to stderr so command output on stdout stays clean.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		logLevel.SetLevel(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = logLevel
	return cfg.Build()
}

func Execute() {
	err := rootCmd.Execute()
	if appCtx := globalAppContext; appCtx != nil {
		_ = appCtx.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.seca-scanner.yaml)")
	rootCmd.PersistentFlags().StringVarP(&operator, "operator", "o", "", "operator name recorded on queued scans (default $USER)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
