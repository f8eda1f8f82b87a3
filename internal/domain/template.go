package domain

import (
	"time"
)

// Template is a named, channel-specific content template with declared
// variables. The automation scheduler looks templates up by category;
// a missing or inactive template silently skips the trigger run.
type Template struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"` // mirrors CampaignType values

	// Per-channel content bodies. Subject applies to subject-bearing
	// channels only.
	Subject string             `json:"subject,omitempty" db:"subject"`
	Bodies  map[Channel]string `json:"bodies"`

	// Variables declared by the author, e.g. "name", "days". The
	// template service validates these render cleanly.
	Variables []string `json:"variables,omitempty"`

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BodyFor returns the template body for a channel, falling back to the
// email body when no channel-specific body exists.
func (t *Template) BodyFor(ch Channel) string {
	if body, ok := t.Bodies[ch]; ok && body != "" {
		return body
	}
	return t.Bodies[ChannelEmail]
}
