// Package dispatch contains the channel transport registry and the
// per-recipient dispatcher.
//
// Channel transports are split into individual files:
//   - email_ses.go: AWS SES v2
//   - sms.go:       SMS gateway HTTP API
//   - instant.go:   instant-message provider HTTP API
//   - social.go:    social posting HTTP API
//
// New channels are added by registering a Transport implementation,
// not by branching on the channel enum.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Message is the fully personalized payload for one recipient on one
// channel.
type Message struct {
	CampaignID  string
	RecipientID string
	ClientID    string
	Subject     string
	Body        string

	// Destination fields; transports read the one they need.
	Email string
	Phone string
}

// Receipt is a provider acknowledgement for a successful send.
type Receipt struct {
	MessageID string
	Cost      float64
	SentAt    time.Time
}

// Transport delivers messages over one channel. Implementations must
// be safe for concurrent use.
type Transport interface {
	// Channel returns the channel this transport serves.
	Channel() domain.Channel

	// Send delivers one message. A non-nil error is recorded on the
	// recipient and never aborts the batch.
	Send(ctx context.Context, msg *Message) (*Receipt, error)

	// ValidateConfig reports whether the transport is usable with its
	// current configuration.
	ValidateConfig() error
}

// Registry maps channel enums to transports.
type Registry struct {
	mu         sync.RWMutex
	transports map[domain.Channel]Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[domain.Channel]Transport)}
}

// Register adds a transport for its channel, replacing any previous one.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Channel()] = t
}

// Transport returns the transport for a channel.
func (r *Registry) Transport(ch domain.Channel) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[ch]
	if !ok {
		return nil, fmt.Errorf("no transport registered for channel %q", ch)
	}
	return t, nil
}

// Channels returns the channels with a registered transport.
func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.transports))
	for ch := range r.transports {
		out = append(out, ch)
	}
	return out
}
