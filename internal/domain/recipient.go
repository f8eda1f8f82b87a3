package domain

import (
	"time"
)

// RecipientStatus enumerates the lifecycle of a single dispatch attempt.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientOpened    RecipientStatus = "opened"
	RecipientClicked   RecipientStatus = "clicked"
	RecipientConverted RecipientStatus = "converted"
	RecipientFailed    RecipientStatus = "failed"
	RecipientBounced   RecipientStatus = "bounced"
	RecipientOptedOut  RecipientStatus = "opted_out"
)

// Recipient is one (campaign, client, channel) dispatch attempt and its
// outcome. Rows are created only once the orchestrator begins
// processing, are unique on (CampaignID, ClientID, Channel), and are
// never deleted, only updated.
type Recipient struct {
	ID         string  `json:"id" db:"id"`
	CampaignID string  `json:"campaign_id" db:"campaign_id"`
	ClientID   string  `json:"client_id" db:"client_id"`
	Channel    Channel `json:"channel" db:"channel"`

	Status  RecipientStatus `json:"status" db:"status"`
	Variant string          `json:"variant,omitempty" db:"variant"`

	// Snapshot of the personalized content actually dispatched.
	Subject string `json:"subject,omitempty" db:"subject"`
	Content string `json:"content,omitempty" db:"content"`

	// Delivery metadata.
	MessageID string  `json:"message_id,omitempty" db:"message_id"`
	Cost      float64 `json:"cost" db:"cost"`
	Error     string  `json:"error,omitempty" db:"error"`
	// RetryCount is reserved for a future retry policy. Nothing
	// increments it today.
	RetryCount int `json:"retry_count" db:"retry_count"`

	// Engagement counters.
	OpenCount  int `json:"open_count" db:"open_count"`
	ClickCount int `json:"click_count" db:"click_count"`

	// Conversion linkage.
	PolicyID   string  `json:"policy_id,omitempty" db:"policy_id"`
	Revenue    float64 `json:"revenue" db:"revenue"`
	Commission float64 `json:"commission" db:"commission"`

	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ConvertedAt *time.Time `json:"converted_at,omitempty" db:"converted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// EngagementScore is a rough per-recipient engagement measure used by
// the stats aggregator: opens count once, clicks twice, a conversion
// five times.
func (r *Recipient) EngagementScore() float64 {
	score := float64(r.OpenCount) + 2*float64(r.ClickCount)
	if r.Status == RecipientConverted {
		score += 5
	}
	return score
}
