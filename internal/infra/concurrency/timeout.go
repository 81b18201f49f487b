// Package concurrency holds small thread-safety utilities shared across
// the chat-core components. This file implements an automatic shutdown
// timer, driven by main.go's RUN_TIMEOUT_SEC config knob so a scripted
// demo run (CI, a smoke test) gets a guaranteed, graceful exit instead of
// hanging on stdin forever.
package concurrency

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// StartTimeoutTimer launches a goroutine that calls cancelFunc after
// timeout seconds. Useful for bounding the lifetime of the demo CLI in
// scripted/test scenarios.
//
// Parameters:
//   - ctx: context whose cancellation short-circuits the timer
//   - timeout: seconds until cancel fires
//   - cancelFunc: invoked once the timeout elapses
//
// Returns immediately; the timer itself runs in a separate goroutine. A
// non-positive timeout or nil cancelFunc is a no-op.
func StartTimeoutTimer(ctx context.Context, timeout int, cancelFunc context.CancelFunc) error {
	if timeout <= 0 || cancelFunc == nil {
		return nil
	}

	duration := time.Duration(timeout) * time.Second

	go func() {
		logger.Info("auto-shutdown timer started", zap.Duration("timeout", duration))

		timer := time.NewTimer(duration)
		defer timer.Stop()

		select {
		case <-timer.C:
			logger.Info("auto-shutdown timeout reached, initiating graceful shutdown")
			cancelFunc()
		case <-ctx.Done():
			logger.Debug("auto-shutdown timer cancelled due to context cancellation")
			return
		}
	}()
	return nil
}
