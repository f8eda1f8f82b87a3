package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft           CampaignStatus = "draft"
	CampaignPendingApproval CampaignStatus = "pending_approval"
	CampaignApproved        CampaignStatus = "approved"
	CampaignRejected        CampaignStatus = "rejected"
	CampaignScheduled       CampaignStatus = "scheduled"
	CampaignSending         CampaignStatus = "sending"
	CampaignSent            CampaignStatus = "sent"
	CampaignFailed          CampaignStatus = "failed"
	CampaignCancelled       CampaignStatus = "cancelled"
)

// CampaignType enumerates the business categories of a campaign.
type CampaignType string

const (
	TypeOffer         CampaignType = "offer"
	TypePromotion     CampaignType = "promotion"
	TypeNewsletter    CampaignType = "newsletter"
	TypeReminder      CampaignType = "reminder"
	TypeBirthday      CampaignType = "birthday"
	TypeAnniversary   CampaignType = "anniversary"
	TypePolicyRenewal CampaignType = "policy_renewal"
	TypePaymentDue    CampaignType = "payment_due"
	TypeClaimUpdate   CampaignType = "claim_update"
	TypeWelcome       CampaignType = "welcome"
)

// IsBusinessCritical reports whether campaigns of this type bypass
// client opt-out preferences. Payment, renewal, and claim notices must
// reach the client regardless of marketing preferences.
func (t CampaignType) IsBusinessCritical() bool {
	return t == TypePaymentDue || t == TypePolicyRenewal || t == TypeClaimUpdate
}

// Channel enumerates the supported dispatch channels.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelInstant Channel = "instant_message"
	ChannelSocial  Channel = "social"
)

// Variant is one A/B-tested content alternative with a selection weight.
type Variant struct {
	Name       string  `json:"name" db:"name"`
	Subject    string  `json:"subject" db:"subject"`
	Content    string  `json:"content" db:"content"`
	Percentage float64 `json:"percentage" db:"percentage"`
}

// ABTestConfig holds the variant list for a campaign's A/B test.
// Percentages across Variants must sum to at most 100.
type ABTestConfig struct {
	Enabled        bool      `json:"enabled"`
	Variants       []Variant `json:"variants,omitempty"`
	WinningVariant string    `json:"winning_variant,omitempty"`
}

// TriggerType enumerates automation trigger categories.
type TriggerType string

const (
	TriggerBirthday     TriggerType = "birthday"
	TriggerAnniversary  TriggerType = "anniversary"
	TriggerPolicyExpiry TriggerType = "policy_expiry"
	TriggerPaymentDue   TriggerType = "payment_due"
	TriggerClaimUpdate  TriggerType = "claim_update"
)

// AutomationConfig marks a campaign as machine-generated and records
// the trigger that produced it.
type AutomationConfig struct {
	IsAutomated bool        `json:"is_automated"`
	Trigger     TriggerType `json:"trigger,omitempty"`
	TemplateID  string      `json:"template_id,omitempty"`
	Recurrence  string      `json:"recurrence,omitempty"` // daily, weekly, once
}

// Approval is the sign-off sub-record of a campaign. Required is
// computed once at creation time and never changes afterwards.
type Approval struct {
	Required        bool       `json:"required" db:"approval_required"`
	Status          string     `json:"status,omitempty" db:"approval_status"`
	ApprovedBy      string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
}

// CampaignStats is the derived aggregate cached onto a campaign after a
// processing batch. The recipient set is authoritative; these numbers
// are always recomputable from it.
type CampaignStats struct {
	TotalRecipients int     `json:"total_recipients" db:"total_recipients"`
	SentCount       int     `json:"sent_count" db:"sent_count"`
	DeliveredCount  int     `json:"delivered_count" db:"delivered_count"`
	OpenedCount     int     `json:"opened_count" db:"opened_count"`
	ClickedCount    int     `json:"clicked_count" db:"clicked_count"`
	ConvertedCount  int     `json:"converted_count" db:"converted_count"`
	FailedCount     int     `json:"failed_count" db:"failed_count"`
	OptedOutCount   int     `json:"opted_out_count" db:"opted_out_count"`
	Cost            float64 `json:"cost" db:"cost"`
	Revenue         float64 `json:"revenue" db:"revenue"`
	ROI             float64 `json:"roi" db:"roi"`
	AvgEngagement   float64 `json:"avg_engagement" db:"avg_engagement"`
}

// Campaign represents one unit of targeted multi-channel outbound
// communication with its own lifecycle and stats.
type Campaign struct {
	ID       string       `json:"id" db:"id"`
	Title    string       `json:"title" db:"title"`
	Type     CampaignType `json:"type" db:"type"`
	Channels []Channel    `json:"channels" db:"channels"`

	// Content is the default body; Subject applies to subject-bearing
	// channels. ChannelContent holds per-channel overrides.
	Subject        string             `json:"subject" db:"subject"`
	Content        string             `json:"content" db:"content"`
	ChannelContent map[Channel]string `json:"channel_content,omitempty"`

	Audience   AudiencePredicate `json:"target_audience"`
	ABTest     ABTestConfig      `json:"ab_test"`
	Automation AutomationConfig  `json:"automation"`
	Approval   Approval          `json:"approval"`

	Budget      float64        `json:"budget" db:"budget"`
	Status      CampaignStatus `json:"status" db:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	Stats       CampaignStats  `json:"stats"`

	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	switch c.Status {
	case CampaignSent, CampaignFailed, CampaignCancelled, CampaignRejected:
		return true
	}
	return false
}

// ContentFor returns the channel-specific content override, falling
// back to the campaign's default content.
func (c *Campaign) ContentFor(ch Channel) string {
	if body, ok := c.ChannelContent[ch]; ok && body != "" {
		return body
	}
	return c.Content
}

// AudiencePredicate is the declarative filter bag describing which
// clients are eligible for a campaign. Non-empty clauses are combined
// with OR, then intersected with Active client status.
type AudiencePredicate struct {
	AllClients      bool     `json:"all_clients"`
	ClientIDs       []string `json:"client_ids,omitempty"`
	ClientTypes     []string `json:"client_types,omitempty"`
	TierLevels      []string `json:"tier_levels,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	PolicyTypes     []string `json:"policy_types,omitempty"`
	PremiumMin      *float64 `json:"premium_min,omitempty"`
	PremiumMax      *float64 `json:"premium_max,omitempty"`
	ClaimHistory    string   `json:"claim_history,omitempty"`     // none, low, high
	InteractionDays int      `json:"interaction_days,omitempty"` // last interaction within N days
}

// IsEmpty reports whether no targeting clause is set. An empty
// predicate with AllClients=false resolves to zero recipients; it is
// not an error.
func (p AudiencePredicate) IsEmpty() bool {
	return !p.AllClients &&
		len(p.ClientIDs) == 0 &&
		len(p.ClientTypes) == 0 &&
		len(p.TierLevels) == 0 &&
		len(p.Locations) == 0 &&
		len(p.PolicyTypes) == 0 &&
		p.PremiumMin == nil && p.PremiumMax == nil &&
		p.ClaimHistory == "" &&
		p.InteractionDays == 0
}
