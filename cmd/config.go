package cmd

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/application"
	scanapp "github.com/khanhnv2901/seca-scanner/internal/application/scan"
	consts "github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

const (
	defaultHTTPTimeoutSeconds = 15
	defaultTLSTimeoutSeconds  = 10
	defaultPollIntervalSecs   = 5
	defaultPollTimeoutSecs    = 600
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	DataDir    string
	ReportsDir string
	Database   string
	Store      string
	Operator   string
	Scan       ScanRuntimeConfig
	Poll       PollConfig
	Server     ServerConfig
}

// ScanRuntimeConfig bounds scan execution.
type ScanRuntimeConfig struct {
	MaxPages          int
	MaxRedirects      int
	TimeoutSecs       int
	TLSTimeoutSecs    int
	RequestsPerSecond float64
	UserAgent         string
}

// PollConfig controls how requesters are notified.
type PollConfig struct {
	IntervalSecs int
	TimeoutSecs  int
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string
	AuthToken       string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	ShutdownTimeout time.Duration
}

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Store:    application.StoreSQLite,
		Database: "seca-scanner.db",
		Operator: detectOperatorFromEnv(),
		Scan: ScanRuntimeConfig{
			MaxPages:       consts.MaxPages,
			MaxRedirects:   consts.MaxRedirects,
			TimeoutSecs:    defaultHTTPTimeoutSeconds,
			TLSTimeoutSecs: defaultTLSTimeoutSeconds,
			UserAgent:      consts.UserAgent,
		},
		Poll: PollConfig{
			IntervalSecs: defaultPollIntervalSecs,
			TimeoutSecs:  defaultPollTimeoutSecs,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func detectOperatorFromEnv() string {
	if env := os.Getenv("USER"); env != "" {
		return env
	}
	if env := os.Getenv("LOGNAME"); env != "" {
		return env
	}
	return ""
}

// loadConfigFile points viper at the config file and environment.
// Environment variables use the SECA_SCANNER_ prefix with dots replaced by
// underscores, e.g. SECA_SCANNER_SCAN_MAX_PAGES.
func loadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("$HOME")
		v.SetConfigName(".seca-scanner")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("SECA_SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// applyConfig merges config file and environment values into cfg.
func (cfg *CLIConfig) applyConfig(v *viper.Viper) {
	setString(v, "data_dir", &cfg.DataDir)
	setString(v, "reports_dir", &cfg.ReportsDir)
	setString(v, "database", &cfg.Database)
	setString(v, "store", &cfg.Store)
	setString(v, "operator", &cfg.Operator)

	setInt(v, "scan.max_pages", &cfg.Scan.MaxPages)
	setInt(v, "scan.max_redirects", &cfg.Scan.MaxRedirects)
	setInt(v, "scan.timeout_secs", &cfg.Scan.TimeoutSecs)
	setInt(v, "scan.tls_timeout_secs", &cfg.Scan.TLSTimeoutSecs)
	setString(v, "scan.user_agent", &cfg.Scan.UserAgent)
	if v.IsSet("scan.requests_per_second") {
		cfg.Scan.RequestsPerSecond = v.GetFloat64("scan.requests_per_second")
	}

	setInt(v, "poll.interval_secs", &cfg.Poll.IntervalSecs)
	setInt(v, "poll.timeout_secs", &cfg.Poll.TimeoutSecs)

	setString(v, "server.addr", &cfg.Server.Addr)
	setString(v, "server.auth_token", &cfg.Server.AuthToken)
	setInt(v, "server.rate_limit", &cfg.Server.RateLimit)
	setInt(v, "server.rate_burst", &cfg.Server.RateBurst)
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		if val := v.GetString(key); val != "" {
			*dst = val
		}
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

// containerConfig translates the CLI settings into service wiring.
func (cfg *CLIConfig) containerConfig(logger *zap.Logger) application.Config {
	scanCfg := scanapp.DefaultConfig()
	scanCfg.Crawl.MaxPages = cfg.Scan.MaxPages
	scanCfg.Crawl.MaxRedirects = cfg.Scan.MaxRedirects
	scanCfg.Crawl.RequestTimeout = seconds(cfg.Scan.TimeoutSecs)
	scanCfg.Crawl.RequestsPerSecond = cfg.Scan.RequestsPerSecond
	scanCfg.TLSTimeout = seconds(cfg.Scan.TLSTimeoutSecs)
	if cfg.Scan.UserAgent != "" {
		scanCfg.UserAgent = cfg.Scan.UserAgent
	}

	return application.Config{
		DataDir:      cfg.DataDir,
		ReportsDir:   cfg.ReportsDir,
		Database:     cfg.Database,
		Store:        cfg.Store,
		Scan:         scanCfg,
		PollInterval: seconds(cfg.Poll.IntervalSecs),
		PollTimeout:  seconds(cfg.Poll.TimeoutSecs),
		Logger:       logger,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// applyIntDefault calls setter with value unless the flag was set explicitly.
func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyStringDefault(flags *pflag.FlagSet, name, value string, setter func(string)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}
