package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-scanner/internal/application"
	"github.com/khanhnv2901/seca-scanner/internal/application/observer"
	scanapp "github.com/khanhnv2901/seca-scanner/internal/application/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// cliPollInterval is how often a waiting CLI checks its job.
const cliPollInterval = time.Second

var scanCmd = &cobra.Command{
	Use:   "scan [url]",
	Short: "Queue a scan of a URL or a registered target",
	Long: `Queue a security scan. Only one scan may be queued or running at a time.

Without --wait the job is left for a running "serve" worker. With --wait the
scan runs in this process (unless a worker already picked it up) and the
result is printed when the job finishes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		flags := cmd.Flags()
		scanType, _ := flags.GetString("type")
		targetID, _ := flags.GetString("target-id")
		description, _ := flags.GetString("description")
		wait, _ := flags.GetBool("wait")
		maxPages, _ := flags.GetInt("max-pages")
		pollTimeout, _ := flags.GetDuration("timeout")
		applyIntDefault(flags, "max-pages", appCtx.Config.Scan.MaxPages, func(v int) { maxPages = v })
		appCtx.Config.Scan.MaxPages = maxPages
		if !flags.Changed("timeout") {
			pollTimeout = seconds(appCtx.Config.Poll.TimeoutSecs)
		}

		req := scanapp.Request{
			TargetID:    targetID,
			Description: description,
			ScanType:    scanType,
			RequestedBy: appCtx.requester(),
		}
		if len(args) == 1 {
			req.URL = args[0]
		}

		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		created, err := services.Scans.CreateScan(ctx, req)
		if err != nil {
			var limited *sharedErrors.RateLimitedError
			if errors.As(err, &limited) {
				return fmt.Errorf("scan %s is already in progress; check it with \"jobs show %s\"", limited.RunningJobID, limited.RunningJobID)
			}
			return err
		}
		fmt.Fprintf(out, "%s Queued job %s (type %s)\n", colorSuccess("✓"), created.ID(), created.ScanType())

		if !wait {
			fmt.Fprintf(out, "%s A running \"%s serve\" worker will execute it. Follow it with \"%s jobs show %s\".\n",
				colorInfo("→"), appName, appName, created.ID())
			return nil
		}

		ev, err := runAndWait(ctx, services, created, out, pollTimeout)
		if err != nil {
			return err
		}
		printEvent(out, ev)
		if ev.Status == string(job.StatusFailed) {
			return fmt.Errorf("scan failed with %s", ev.ErrorCode)
		}
		return nil
	},
}

// runAndWait executes the job in-process and waits for its terminal
// notification. A job already claimed by another worker is only waited on.
func runAndWait(ctx context.Context, services *application.Container, created *job.Job, out io.Writer, timeout time.Duration) (notify.Event, error) {
	events := make(chan notify.Event, 1)
	watcher := observer.New(services.Jobs,
		notify.NotifierFunc(func(ctx context.Context, dest notify.Destination, ev notify.Event) error {
			events <- ev
			return nil
		}),
		observer.WithPolling(cliPollInterval, timeout))
	defer watcher.Close()

	dest, err := notify.ParseDestination(created.RequestedBy())
	if err != nil {
		return notify.Event{}, err
	}
	watcher.Observe(created.ID(), dest)

	progress := newProgressPrinter(out, created.ID())
	progress.Start()
	defer progress.Stop()

	executed := make(chan error, 1)
	go func() {
		err := services.Scans.Execute(ctx, created.ID())
		if errors.Is(err, sharedErrors.ErrInvalidTransition) {
			err = nil
		}
		executed <- err
	}()

	ticker := time.NewTicker(cliPollInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			progress.Stop()
			return ev, nil
		case err := <-executed:
			if err != nil {
				return notify.Event{}, err
			}
			executed = nil
		case <-ticker.C:
			if j, err := services.Jobs.FindByID(ctx, created.ID()); err == nil {
				progress.SetStatus(string(j.Status()))
			}
		case <-ctx.Done():
			return notify.Event{}, ctx.Err()
		}
	}
}

// printEvent writes the notification text with the status highlighted.
func printEvent(out io.Writer, ev notify.Event) {
	for _, line := range strings.Split(ev.Text(), "\n") {
		switch {
		case strings.HasPrefix(line, "Status: "):
			line = "Status: " + formatStatusWithColor(strings.TrimPrefix(line, "Status: "))
		case strings.HasPrefix(line, "Error: "):
			line = colorError(line)
		case ev.TimedOut:
			line = colorWarn(line)
		}
		fmt.Fprintln(out, line)
	}
}

func init() {
	scanCmd.Flags().String("type", "all", "Scan type: all, http or tls")
	scanCmd.Flags().String("target-id", "", "Scan a registered target instead of a URL")
	scanCmd.Flags().String("description", "", "Description stored on a newly registered target")
	scanCmd.Flags().Bool("wait", false, "Run the scan here and wait for the result")
	scanCmd.Flags().Int("max-pages", 20, "Maximum pages to crawl")
	scanCmd.Flags().Duration("timeout", 10*time.Minute, "How long to wait for the result")
	rootCmd.AddCommand(scanCmd)
}
