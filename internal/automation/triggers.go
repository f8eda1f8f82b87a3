package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// PolicySource provides the policy lookups the date triggers need.
type PolicySource interface {
	// ExpiringOn returns active policies whose expiry date falls on the
	// given calendar day.
	ExpiringOn(ctx context.Context, day time.Time) ([]domain.Policy, error)
	// PaymentsDueOn returns active policies whose next payment is due
	// on the given calendar day.
	PaymentsDueOn(ctx context.Context, day time.Time) ([]domain.Policy, error)
}

// ClaimEvent is a recent claim status change reported by the claims
// collaborator.
type ClaimEvent struct {
	ClaimID  string
	ClientID string
	Status   string
}

// ClaimSource reports recent claim activity.
type ClaimSource interface {
	UpdatedSince(ctx context.Context, since time.Time) ([]ClaimEvent, error)
}

// sameMonthDay reports whether two times fall on the same calendar
// day, ignoring the year.
func sameMonthDay(a, b time.Time) bool {
	return a.Month() == b.Month() && a.Day() == b.Day()
}

// =====================================================================
// Birthday
// =====================================================================

type BirthdayHandler struct {
	clients audience.ClientRegistry
}

func NewBirthdayHandler(clients audience.ClientRegistry) *BirthdayHandler {
	return &BirthdayHandler{clients: clients}
}

func (h *BirthdayHandler) Trigger() domain.TriggerType { return domain.TriggerBirthday }
func (h *BirthdayHandler) Category() string            { return string(domain.TypeBirthday) }

func (h *BirthdayHandler) Match(ctx context.Context, now time.Time) ([]Candidate, error) {
	clients, err := h.clients.ActiveClients(ctx)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for i := range clients {
		c := &clients[i]
		if c.DateOfBirth == nil || !sameMonthDay(*c.DateOfBirth, now) {
			continue
		}
		out = append(out, Candidate{
			ClientID: c.ID,
			EntityID: c.ID,
			Title:    fmt.Sprintf("Birthday greetings for %s", c.Name),
		})
	}
	return out, nil
}

// =====================================================================
// Client anniversary
// =====================================================================

type AnniversaryHandler struct {
	clients audience.ClientRegistry
}

func NewAnniversaryHandler(clients audience.ClientRegistry) *AnniversaryHandler {
	return &AnniversaryHandler{clients: clients}
}

func (h *AnniversaryHandler) Trigger() domain.TriggerType { return domain.TriggerAnniversary }
func (h *AnniversaryHandler) Category() string            { return string(domain.TypeAnniversary) }

func (h *AnniversaryHandler) Match(ctx context.Context, now time.Time) ([]Candidate, error) {
	clients, err := h.clients.ActiveClients(ctx)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for i := range clients {
		c := &clients[i]
		if c.ClientSince == nil || !sameMonthDay(*c.ClientSince, now) {
			continue
		}
		years := now.Year() - c.ClientSince.Year()
		if years < 1 {
			continue
		}
		out = append(out, Candidate{
			ClientID: c.ID,
			EntityID: c.ID,
			Title:    fmt.Sprintf("%d year anniversary for %s", years, c.Name),
			Vars:     map[string]string{"years": strconv.Itoa(years)},
		})
	}
	return out, nil
}

// =====================================================================
// Policy expiry
// =====================================================================

// defaultExpiryOffsets are the days-before-expiry checkpoints a renewal
// reminder fires at.
var defaultExpiryOffsets = []int{30, 15, 7, 1}

type PolicyExpiryHandler struct {
	policies PolicySource
	offsets  []int
}

func NewPolicyExpiryHandler(policies PolicySource) *PolicyExpiryHandler {
	return &PolicyExpiryHandler{policies: policies, offsets: defaultExpiryOffsets}
}

func (h *PolicyExpiryHandler) Trigger() domain.TriggerType { return domain.TriggerPolicyExpiry }
func (h *PolicyExpiryHandler) Category() string            { return string(domain.TypePolicyRenewal) }

func (h *PolicyExpiryHandler) Match(ctx context.Context, now time.Time) ([]Candidate, error) {
	var out []Candidate
	for _, offset := range h.offsets {
		day := now.AddDate(0, 0, offset)
		policies, err := h.policies.ExpiringOn(ctx, day)
		if err != nil {
			return nil, err
		}
		for i := range policies {
			p := &policies[i]
			out = append(out, Candidate{
				ClientID: p.ClientID,
				EntityID: p.ID,
				Title:    fmt.Sprintf("Policy renewal: %s expires in %d days", p.Type, offset),
				Vars: map[string]string{
					"days":        strconv.Itoa(offset),
					"policy_type": p.Type,
				},
			})
		}
	}
	return out, nil
}

// =====================================================================
// Payment due
// =====================================================================

// paymentDueLeadDays is how far ahead of the due date the reminder
// goes out.
const paymentDueLeadDays = 3

type PaymentDueHandler struct {
	policies PolicySource
}

func NewPaymentDueHandler(policies PolicySource) *PaymentDueHandler {
	return &PaymentDueHandler{policies: policies}
}

func (h *PaymentDueHandler) Trigger() domain.TriggerType { return domain.TriggerPaymentDue }
func (h *PaymentDueHandler) Category() string            { return string(domain.TypePaymentDue) }

func (h *PaymentDueHandler) Match(ctx context.Context, now time.Time) ([]Candidate, error) {
	day := now.AddDate(0, 0, paymentDueLeadDays)
	policies, err := h.policies.PaymentsDueOn(ctx, day)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for i := range policies {
		p := &policies[i]
		out = append(out, Candidate{
			ClientID: p.ClientID,
			EntityID: p.ID,
			Title:    fmt.Sprintf("Payment reminder: %s premium due %s", p.Type, day.Format("Jan 2")),
			Vars: map[string]string{
				"amount":      fmt.Sprintf("%.2f", p.Premium),
				"due_date":    day.Format("January 2, 2006"),
				"policy_type": p.Type,
			},
		})
	}
	return out, nil
}

// =====================================================================
// Claim update
// =====================================================================

// claimLookback bounds how far back a claim status change still counts
// as recent. The daily dedup key keeps overlapping windows from
// double-notifying.
const claimLookback = 24 * time.Hour

type ClaimUpdateHandler struct {
	claims ClaimSource
}

func NewClaimUpdateHandler(claims ClaimSource) *ClaimUpdateHandler {
	return &ClaimUpdateHandler{claims: claims}
}

func (h *ClaimUpdateHandler) Trigger() domain.TriggerType { return domain.TriggerClaimUpdate }
func (h *ClaimUpdateHandler) Category() string            { return string(domain.TypeClaimUpdate) }

func (h *ClaimUpdateHandler) Match(ctx context.Context, now time.Time) ([]Candidate, error) {
	events, err := h.claims.UpdatedSince(ctx, now.Add(-claimLookback))
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, ev := range events {
		out = append(out, Candidate{
			ClientID: ev.ClientID,
			EntityID: ev.ClaimID,
			Title:    fmt.Sprintf("Claim %s update: %s", ev.ClaimID, ev.Status),
			Vars: map[string]string{
				"claim_id":     ev.ClaimID,
				"claim_status": ev.Status,
			},
		})
	}
	return out, nil
}
