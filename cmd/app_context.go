package cmd

import (
	"context"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/application"
)

// AppContext holds the state shared by every command of one invocation.
type AppContext struct {
	Logger   *zap.SugaredLogger
	Operator string
	Config   *CLIConfig

	once      sync.Once
	closeOnce sync.Once
	services  *application.Container
	err       error
}

type appContextKey struct{}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if ctx := cmd.Context(); ctx != nil {
		if appCtx, ok := ctx.Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

// Services opens the stores on first use so commands such as version never
// touch the database.
func (a *AppContext) Services() (*application.Container, error) {
	a.once.Do(func() {
		var logger *zap.Logger
		if a.Logger != nil {
			logger = a.Logger.Desugar()
		}
		a.services, a.err = application.NewContainer(a.Config.containerConfig(logger))
	})
	return a.services, a.err
}

// Close releases the services if they were opened.
func (a *AppContext) Close() error {
	if a == nil {
		return nil
	}
	var err error
	a.closeOnce.Do(func() {
		if a.services != nil {
			err = a.services.Close()
		}
	})
	return err
}

// requester is the destination recorded on jobs created from this CLI.
func (a *AppContext) requester() string {
	return "cli:" + a.Operator
}
