package application

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/application/observer"
	scanapp "github.com/khanhnv2901/seca-scanner/internal/application/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/memory"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/sqlite"
	"github.com/khanhnv2901/seca-scanner/internal/security"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config selects the backends and tunables the container wires together.
type Config struct {
	DataDir    string
	ReportsDir string
	// Database is the SQLite file; relative paths resolve under DataDir.
	Database     string
	Store        string
	Scan         scanapp.Config
	PollInterval time.Duration
	PollTimeout  time.Duration
	GuardOptions []security.Option
	Logger       *zap.Logger
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	// Repositories
	Jobs    job.Repository
	Targets target.Repository
	Reports *json.ReportStore

	// Notification
	Hub      *notify.Hub
	Notifier notify.Notifier

	// Services
	Scans    *scanapp.Service
	Observer *observer.Observer

	db *sqlite.DB
}

// NewContainer creates a new application service container
func NewContainer(cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = filepath.Join(cfg.DataDir, "reports")
	}

	c := &Container{}
	switch cfg.Store {
	case StoreMemory:
		c.Jobs = memory.NewJobStore()
		c.Targets = memory.NewTargetStore()
	case StoreSQLite, "":
		path := cfg.Database
		if path == "" {
			path = "seca-scanner.db"
		}
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open job database: %w", err)
		}
		c.db = db
		c.Jobs = sqlite.NewJobStore(db)
		c.Targets = sqlite.NewTargetStore(db)
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", cfg.Store, StoreSQLite, StoreMemory)
	}

	reports, err := json.NewReportStore(cfg.ReportsDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}
	c.Reports = reports

	c.Hub = notify.NewHub(logger.Named("hub"))
	c.Notifier = notify.Multi{notify.NewLogNotifier(logger.Named("notify")), c.Hub}

	c.Scans = scanapp.NewService(c.Jobs, c.Targets, c.Reports, security.NewGuard(cfg.GuardOptions...),
		scanapp.WithConfig(cfg.Scan),
		scanapp.WithLogger(logger.Named("scan")))
	c.Observer = observer.New(c.Jobs, c.Notifier,
		observer.WithPolling(cfg.PollInterval, cfg.PollTimeout),
		observer.WithLogger(logger.Named("observer")))

	return c, nil
}

// Ping reports whether the job store is reachable.
func (c *Container) Ping() error {
	if c.db != nil {
		return c.db.Ping()
	}
	return nil
}

// Close stops observation and releases the database.
func (c *Container) Close() error {
	var errs []error
	if c.Observer != nil {
		c.Observer.Close()
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
