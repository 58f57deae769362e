// Package notifier formats repository activity and delivers it to chat channels.
package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/repowatch/pkg/logger"
)

// Sender delivers one message to one channel of a chat platform.
type Sender interface {
	Name() string
	Send(ctx context.Context, channelID, content string) error
}

// Dispatcher sends notifications through a Sender, keeping a fixed minimum
// delay between consecutive sends. It is meant to be driven serially.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
}

// NewDispatcher creates a dispatcher. A delay of zero disables pacing.
func NewDispatcher(sender Sender, delay time.Duration) *Dispatcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Send delivers message to channelID on a best-effort basis.
// Failures are logged here; the returned error is informational only.
func (d *Dispatcher) Send(ctx context.Context, channelID, message string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Str("channel_id", channelID).Msg("Notification skipped while waiting for send slot")
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	if err := d.sender.Send(ctx, channelID, message); err != nil {
		logger.Error().
			Err(err).
			Str("platform", d.sender.Name()).
			Str("channel_id", channelID).
			Msg("Failed to send notification")
		return err
	}

	logger.Debug().Str("platform", d.sender.Name()).Str("channel_id", channelID).Msg("Notification sent")
	return nil
}
