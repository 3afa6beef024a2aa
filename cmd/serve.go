package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/seca-scanner/internal/api"
	"github.com/khanhnv2901/seca-scanner/internal/application"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan worker and the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config
		flags := cmd.Flags()

		addr, _ := flags.GetString("addr")
		authToken, _ := flags.GetString("auth-token")
		shutdownTimeout, _ := flags.GetDuration("shutdown-timeout")
		corsOrigins, _ := flags.GetStringSlice("cors-origins")
		rateLimit, _ := flags.GetInt("rate-limit")
		rateBurst, _ := flags.GetInt("rate-burst")
		applyStringDefault(flags, "addr", cfg.Server.Addr, func(v string) { addr = v })
		applyStringDefault(flags, "auth-token", cfg.Server.AuthToken, func(v string) { authToken = v })
		applyIntDefault(flags, "rate-limit", cfg.Server.RateLimit, func(v int) { rateLimit = v })
		applyIntDefault(flags, "rate-burst", cfg.Server.RateBurst, func(v int) { rateBurst = v })
		if !flags.Changed("cors-origins") && len(cfg.Server.CORSOrigins) > 0 {
			corsOrigins = cfg.Server.CORSOrigins
		}
		if !flags.Changed("shutdown-timeout") && cfg.Server.ShutdownTimeout > 0 {
			shutdownTimeout = cfg.Server.ShutdownTimeout
		}

		if !debug {
			logLevel.SetLevel(zapcore.InfoLevel)
		}
		logger := appCtx.Logger.Desugar()

		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := startBackground(ctx, services, logger); err != nil {
			return err
		}

		server := api.NewServer(api.Config{
			Scans:       services.Scans,
			Observer:    services.Observer,
			Events:      services.Hub,
			Health:      services.Ping,
			AuthToken:   authToken,
			Logger:      logger.Named("api"),
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		})

		httpServer := &http.Server{
			Addr:         addr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // streaming endpoints stay open
			IdleTimeout:  120 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s API server listening on %s (data dir: %s)\n", colorInfo("→"), addr, cfg.DataDir)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := services.Scans.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					server.SweepLimiters()
				}
			}
		})
		g.Go(func() error {
			<-gctx.Done()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s Initiating graceful shutdown...\n", colorInfo("→"))

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Server shutdown complete\n", colorInfo("✓"))
		return nil
	},
}

// startBackground resumes notification of the jobs a previous process left
// active, then fails the ones it left RUNNING. Observation starts first so
// the interrupted jobs still reach their requesters.
func startBackground(ctx context.Context, services *application.Container, logger *zap.Logger) error {
	recovered, err := services.Observer.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover job observation: %w", err)
	}
	interrupted, err := services.Scans.ReconcileInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile interrupted jobs: %w", err)
	}
	logger.Info("worker starting",
		zap.Int("interrupted_jobs", interrupted),
		zap.Int("observed_jobs", recovered))
	return nil
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	rootCmd.AddCommand(serveCmd)
}
