// Package personalize substitutes client data into campaign content.
//
// Substitution is literal token replacement, not template evaluation:
// recognized {{token}} markers are replaced globally, and anything
// unrecognized is left verbatim. Rich template authoring and
// validation live in the template service.
package personalize

import (
	"strconv"
	"strings"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Personalizer renders campaign content and subjects for one recipient.
type Personalizer struct{}

// New creates a Personalizer.
func New() *Personalizer { return &Personalizer{} }

// Render replaces the recognized tokens in s with the client's data.
// Unrecognized tokens are left untouched; personalization never fails.
func (p *Personalizer) Render(s string, snap *domain.ClientSnapshot) string {
	pairs := make([]string, 0, 24)
	for token, value := range map[string]string{
		"name":         snap.Name,
		"first_name":   snap.DisplayFirstName(),
		"email":        snap.Email,
		"phone":        snap.Phone,
		"city":         snap.City,
		"policy_count": strconv.Itoa(snap.PolicyCount),
	} {
		// Template bodies use both {{x}} and the spaced {{ x }} form.
		pairs = append(pairs, "{{"+token+"}}", value, "{{ "+token+" }}", value)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// RenderMessage renders both subject and body for one recipient.
func (p *Personalizer) RenderMessage(subject, body string, snap *domain.ClientSnapshot) (string, string) {
	return p.Render(subject, snap), p.Render(body, snap)
}
