package cmd

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

func TestStartBackgroundNotifiesInterruptedJobs(t *testing.T) {
	appCtx := setupTestAppContext(t)
	appCtx.Config.Poll.IntervalSecs = 1
	services, err := appCtx.Services()
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	ctx := context.Background()

	// A job a previous process left RUNNING.
	j, _ := job.NewJob("target-1", "http", "ws:client-1")
	if err := services.Jobs.CreateIfIdle(ctx, j); err != nil {
		t.Fatalf("CreateIfIdle: %v", err)
	}
	_ = j.RecordResolvedIPs([]string{"93.184.216.34"})
	_ = j.Start()
	if err := services.Jobs.Update(ctx, j, job.StatusQueued); err != nil {
		t.Fatalf("Update: %v", err)
	}

	messages, unsubscribe := services.Hub.Subscribe()
	defer unsubscribe()

	if err := startBackground(ctx, services, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("startBackground: %v", err)
	}

	got, _ := services.Jobs.FindByID(ctx, j.ID())
	if got.Status() != job.StatusFailed || got.ErrorCode() != sharedErrors.CodeScanInterrupted {
		t.Fatalf("expected FAILED/%s, got %s/%s", sharedErrors.CodeScanInterrupted, got.Status(), got.ErrorCode())
	}

	select {
	case msg := <-messages:
		if msg.Event.JobID != j.ID() || msg.Event.Status != string(job.StatusFailed) {
			t.Fatalf("unexpected event %+v", msg.Event)
		}
		if msg.Event.ErrorCode != sharedErrors.CodeScanInterrupted {
			t.Fatalf("expected %s, got %s", sharedErrors.CodeScanInterrupted, msg.Event.ErrorCode)
		}
		if msg.Destination.Channel != notify.ChannelWebSocket || msg.Destination.Address != "client-1" {
			t.Fatalf("unexpected destination %+v", msg.Destination)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("requester of the interrupted job was never notified")
	}
}
