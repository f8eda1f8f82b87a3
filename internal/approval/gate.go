// Package approval implements the campaign sign-off state machine.
//
// The gate decides, once at creation time, whether a campaign needs
// explicit approval, and validates every status transition thereafter.
// Approve/Reject operations are compare-and-set guarded at the
// repository layer; this package holds the pure rules.
package approval

import (
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// DefaultBudgetThreshold is the spend above which any campaign needs
// sign-off regardless of type.
const DefaultBudgetThreshold = 50000

// Gate evaluates approval rules.
type Gate struct {
	budgetThreshold float64
}

// NewGate creates a gate. A zero threshold uses the default.
func NewGate(budgetThreshold float64) *Gate {
	if budgetThreshold <= 0 {
		budgetThreshold = DefaultBudgetThreshold
	}
	return &Gate{budgetThreshold: budgetThreshold}
}

// Required reports whether a campaign needs explicit approval. The
// result is computed once at creation and stored immutably on the
// campaign's approval sub-record.
func (g *Gate) Required(t domain.CampaignType, budget float64, audience domain.AudiencePredicate) bool {
	if t == domain.TypeOffer || t == domain.TypePromotion {
		return true
	}
	if budget > g.budgetThreshold {
		return true
	}
	return audience.AllClients
}

// InitialStatus returns the status a freshly created campaign enters:
// pending_approval when sign-off is required, approved otherwise.
func (g *Gate) InitialStatus(required bool) domain.CampaignStatus {
	if required {
		return domain.CampaignPendingApproval
	}
	return domain.CampaignApproved
}

// transitions is the allowed edge set of the campaign state machine.
var transitions = map[domain.CampaignStatus][]domain.CampaignStatus{
	domain.CampaignDraft:           {domain.CampaignPendingApproval, domain.CampaignApproved, domain.CampaignCancelled},
	domain.CampaignPendingApproval: {domain.CampaignApproved, domain.CampaignRejected, domain.CampaignCancelled},
	domain.CampaignApproved:        {domain.CampaignScheduled, domain.CampaignSending, domain.CampaignCancelled},
	domain.CampaignScheduled:       {domain.CampaignSending, domain.CampaignCancelled},
	domain.CampaignSending:         {domain.CampaignSent, domain.CampaignFailed},
}

// CanTransition reports whether the state machine allows from → to.
// Terminal states (sent, failed, cancelled, rejected) have no exits.
func CanTransition(from, to domain.CampaignStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
