// Package automation evaluates date-based triggers and manufactures
// campaigns from templates. Each trigger type registers a handler; one
// scheduler loop drives them all.
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Candidate is one entity a trigger matched on this run. The scheduler
// synthesizes one campaign per candidate.
type Candidate struct {
	ClientID string
	// EntityID is the idempotency-guard entity. It defaults to the
	// client id; policy-scoped triggers set the policy id so two
	// policies of one client each get their campaign.
	EntityID string
	Title    string
	// Vars are bound into the template body at synthesis time,
	// e.g. "days" for expiry countdowns. Per-recipient tokens like
	// {{name}} are left for the personalizer.
	Vars map[string]string
}

// Handler matches entities for one trigger type.
type Handler interface {
	Trigger() domain.TriggerType
	// Category names the template category this trigger binds.
	Category() string
	Match(ctx context.Context, now time.Time) ([]Candidate, error)
}

// HandlerRegistry maps trigger types to their handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.TriggerType]Handler
	order    []domain.TriggerType
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[domain.TriggerType]Handler)}
}

// Register adds a handler. Registering the same trigger twice is a
// wiring bug.
func (r *HandlerRegistry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := h.Trigger()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for trigger %s", t)
	}
	r.handlers[t] = h
	r.order = append(r.order, t)
	return nil
}

func (r *HandlerRegistry) Handler(t domain.TriggerType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Handlers returns all handlers in registration order.
func (r *HandlerRegistry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.handlers[t])
	}
	return out
}
