package domain

import (
	"time"
)

// ClientStatus enumerates registry states of an insurance client.
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
	ClientArchived ClientStatus = "archived"
)

// CommunicationPreferences records per-channel, per-category opt-outs.
// The zero value means fully opted in. Business-critical campaign
// types are never filtered by these preferences.
type CommunicationPreferences struct {
	// OptedOut maps channel -> campaign categories the client refused.
	// The wildcard category "*" opts the client out of every
	// non-critical category on that channel.
	OptedOut map[Channel][]string `json:"opted_out,omitempty"`
}

// AllowsChannel reports whether the client accepts the given campaign
// category on the given channel.
func (p CommunicationPreferences) AllowsChannel(ch Channel, category CampaignType) bool {
	if category.IsBusinessCritical() {
		return true
	}
	for _, c := range p.OptedOut[ch] {
		if c == "*" || c == string(category) {
			return false
		}
	}
	return true
}

// ClientSnapshot is the read-model view of a client used for audience
// resolution and personalization. It is produced by the client
// registry collaborator; the engine never mutates client records.
type ClientSnapshot struct {
	ID         string       `json:"id" db:"id"`
	Type       string       `json:"type" db:"type"` // individual, corporate
	Status     ClientStatus `json:"status" db:"status"`
	Name       string       `json:"name" db:"name"`
	FirstName  string       `json:"first_name,omitempty" db:"first_name"`
	ContactPerson string    `json:"contact_person,omitempty" db:"contact_person"`
	Email      string       `json:"email" db:"email"`
	Phone      string       `json:"phone,omitempty" db:"phone"`
	City       string       `json:"city,omitempty" db:"city"`
	TierLevel  string       `json:"tier_level,omitempty" db:"tier_level"`

	DateOfBirth  *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	ClientSince  *time.Time `json:"client_since,omitempty" db:"client_since"`
	LastContact  *time.Time `json:"last_contact,omitempty" db:"last_contact"`

	PolicyTypes   []string `json:"policy_types,omitempty"`
	PolicyCount   int      `json:"policy_count" db:"policy_count"`
	TotalPremium  float64  `json:"total_premium" db:"total_premium"`
	OpenClaims    int      `json:"open_claims" db:"open_claims"`
	LifetimeClaims int     `json:"lifetime_claims" db:"lifetime_claims"`

	Preferences CommunicationPreferences `json:"preferences"`
}

// DisplayFirstName returns the client's first name, falling back to the
// contact person for corporate clients and finally to the full name.
func (c *ClientSnapshot) DisplayFirstName() string {
	if c.FirstName != "" {
		return c.FirstName
	}
	if c.ContactPerson != "" {
		return c.ContactPerson
	}
	return c.Name
}

// Policy is the slice of a policy record the engine reads for expiry
// matching and conversion attribution.
type Policy struct {
	ID         string     `json:"id" db:"id"`
	ClientID   string     `json:"client_id" db:"client_id"`
	Type       string     `json:"type" db:"type"`
	Status     string     `json:"status" db:"status"`
	Premium    float64    `json:"premium" db:"premium"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	NextDueAt  *time.Time `json:"next_due_at,omitempty" db:"next_due_at"`
}
