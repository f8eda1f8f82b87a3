// Package audience resolves a campaign's targeting predicate into the
// set of clients eligible to receive it.
//
// Predicate evaluation is a pure function over client snapshots so it
// can be unit tested without storage. The Resolver composes that with
// a client registry collaborator and the per-channel opt-out rules.
package audience

import (
	"context"
	"fmt"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
)

// ClientRegistry is the read-only collaborator that supplies client
// snapshots. Implementations must be safe for concurrent use.
type ClientRegistry interface {
	// ActiveClients returns all clients with Active status.
	ActiveClients(ctx context.Context) ([]domain.ClientSnapshot, error)

	// ClientByID returns a single client snapshot. A lookup failure for
	// one client skips that client; it never aborts resolution.
	ClientByID(ctx context.Context, id string) (*domain.ClientSnapshot, error)
}

// Resolver turns audience predicates into deduplicated recipient sets.
type Resolver struct {
	registry ClientRegistry
}

// NewResolver creates a resolver backed by the given client registry.
func NewResolver(registry ClientRegistry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the deduplicated, opt-in-filtered list of clients
// eligible for the campaign on at least one of its channels.
//
// An empty predicate with AllClients=false yields an empty set, not an
// error. A registry scan failure aborts resolution; the campaign stays
// in its pre-sending state.
func (r *Resolver) Resolve(ctx context.Context, c *domain.Campaign) ([]domain.ClientSnapshot, error) {
	pred := c.Audience
	if pred.IsEmpty() {
		return nil, nil
	}

	candidates, err := r.candidates(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	seen := make(map[string]bool, len(candidates))
	var out []domain.ClientSnapshot
	for _, snap := range candidates {
		if seen[snap.ID] {
			continue
		}
		seen[snap.ID] = true

		if snap.Status != domain.ClientActive {
			continue
		}
		if !pred.AllClients && !Matches(pred, &snap, time.Now()) {
			continue
		}
		if len(EligibleChannels(&snap, c.Type, c.Channels)) == 0 {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// candidates loads the snapshot pool the predicate is evaluated over.
// Specific-id targeting avoids a full registry scan.
func (r *Resolver) candidates(ctx context.Context, pred domain.AudiencePredicate) ([]domain.ClientSnapshot, error) {
	onlySpecific := !pred.AllClients &&
		len(pred.ClientIDs) > 0 &&
		len(pred.ClientTypes) == 0 && len(pred.TierLevels) == 0 &&
		len(pred.Locations) == 0 && len(pred.PolicyTypes) == 0 &&
		pred.PremiumMin == nil && pred.PremiumMax == nil &&
		pred.ClaimHistory == "" && pred.InteractionDays == 0

	if !onlySpecific {
		return r.registry.ActiveClients(ctx)
	}

	var out []domain.ClientSnapshot
	for _, id := range pred.ClientIDs {
		snap, err := r.registry.ClientByID(ctx, id)
		if err != nil {
			logger.Warn("audience client lookup failed", "client_id", id, "error", err)
			continue
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Matches reports whether a client satisfies the predicate. Non-empty
// clauses are combined with OR; Active status is checked by the caller.
func Matches(pred domain.AudiencePredicate, snap *domain.ClientSnapshot, now time.Time) bool {
	if pred.AllClients {
		return true
	}

	for _, id := range pred.ClientIDs {
		if id == snap.ID {
			return true
		}
	}
	for _, t := range pred.ClientTypes {
		if t == snap.Type {
			return true
		}
	}
	for _, tier := range pred.TierLevels {
		if tier == snap.TierLevel {
			return true
		}
	}
	for _, loc := range pred.Locations {
		if loc == snap.City {
			return true
		}
	}
	for _, pt := range pred.PolicyTypes {
		for _, have := range snap.PolicyTypes {
			if pt == have {
				return true
			}
		}
	}
	if pred.PremiumMin != nil || pred.PremiumMax != nil {
		lo, hi := 0.0, maxPremium
		if pred.PremiumMin != nil {
			lo = *pred.PremiumMin
		}
		if pred.PremiumMax != nil {
			hi = *pred.PremiumMax
		}
		if snap.TotalPremium >= lo && snap.TotalPremium <= hi {
			return true
		}
	}
	if pred.ClaimHistory != "" && claimBucket(snap.LifetimeClaims) == pred.ClaimHistory {
		return true
	}
	if pred.InteractionDays > 0 && snap.LastContact != nil {
		cutoff := now.AddDate(0, 0, -pred.InteractionDays)
		if snap.LastContact.After(cutoff) {
			return true
		}
	}
	return false
}

const maxPremium = 1e12

// claimBucket maps a lifetime claim count onto the predicate's
// claim-history buckets.
func claimBucket(claims int) string {
	switch {
	case claims == 0:
		return "none"
	case claims <= 2:
		return "low"
	default:
		return "high"
	}
}

// EligibleChannels returns the subset of requested channels the client
// has not opted out of for the campaign's category. Business-critical
// categories bypass opt-outs entirely.
func EligibleChannels(snap *domain.ClientSnapshot, category domain.CampaignType, channels []domain.Channel) []domain.Channel {
	var out []domain.Channel
	for _, ch := range channels {
		if snap.Preferences.AllowsChannel(ch, category) {
			out = append(out, ch)
		}
	}
	return out
}
