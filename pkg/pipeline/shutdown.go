package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
)

const defaultShutdownTimeout = 30 * time.Second

// RunWithGracefulShutdown runs driver and handles SIGTERM/SIGINT by
// cancelling ctx, which cascades through channel closure down the
// pipeline (there is no other cancellation primitive in the core). It
// blocks until the driver completes; once a signal has arrived it waits at
// most timeout more, then returns an error wrapping
// context.DeadlineExceeded without waiting for the driver. Every run is tagged with a random run ID for correlating its log
// lines across stages.
func RunWithGracefulShutdown(ctx context.Context, driver *Driver, alloc memory.Allocator, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}

	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	logger.Info("pipeline run starting")
	errCh := make(chan error, 1)
	go func() {
		errCh <- driver.Run(ctx, alloc)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()

		select {
		case err := <-errCh:
			logger.Info("pipeline run finished", "error", err)
			return err
		case <-time.After(timeout):
			logger.Warn("shutdown timeout expired, forcing exit", "timeout", timeout)
			return fmt.Errorf("otters: shutdown timed out after %s: %w", timeout, context.DeadlineExceeded)
		}

	case err := <-errCh:
		logger.Info("pipeline run finished", "error", err)
		return err
	}
}
