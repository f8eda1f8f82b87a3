package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/metrics"
)

// Outcome is the recorded result of one (recipient, channel) dispatch.
// Transport failures are data, not control flow: they are captured
// here and folded into the campaign's failed count, never propagated.
type Outcome struct {
	Status    domain.RecipientStatus
	MessageID string
	Cost      float64
	Error     string
	SentAt    *time.Time
}

// Dispatcher executes single sends against the transport registry with
// an enforced per-call timeout and per-channel rate limiting.
type Dispatcher struct {
	registry *Registry
	limiter  *RateLimiter
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. limiter may be nil.
func NewDispatcher(registry *Registry, limiter *RateLimiter, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{registry: registry, limiter: limiter, timeout: timeout}
}

// Dispatch sends one message on one channel and returns the outcome.
// It never returns an error for transport failures; only a missing
// transport or cancelled context surfaces to the caller, and even then
// as a failed Outcome so the batch can continue.
func (d *Dispatcher) Dispatch(ctx context.Context, ch domain.Channel, msg *Message) Outcome {
	transport, err := d.registry.Transport(ch)
	if err != nil {
		metrics.DispatchFailed(string(ch))
		return failedOutcome(err)
	}

	if d.limiter != nil {
		for {
			allowed, wait, _ := d.limiter.Allow(ctx, ch)
			if allowed {
				break
			}
			select {
			case <-ctx.Done():
				metrics.DispatchFailed(string(ch))
				return failedOutcome(fmt.Errorf("rate limit wait: %w", ctx.Err()))
			case <-time.After(wait):
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	receipt, err := transport.Send(callCtx, msg)
	if err != nil {
		metrics.DispatchFailed(string(ch))
		return failedOutcome(err)
	}

	metrics.DispatchSent(string(ch))
	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return Outcome{
		Status:    domain.RecipientSent,
		MessageID: receipt.MessageID,
		Cost:      receipt.Cost,
		SentAt:    &sentAt,
	}
}

func failedOutcome(err error) Outcome {
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return Outcome{Status: domain.RecipientFailed, Error: msg}
}
