package audience_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// memRegistry is an in-memory client registry for unit testing.
type memRegistry struct {
	clients map[string]domain.ClientSnapshot
	failIDs map[string]bool
	scanErr error
}

func newMemRegistry(clients ...domain.ClientSnapshot) *memRegistry {
	m := &memRegistry{clients: make(map[string]domain.ClientSnapshot), failIDs: make(map[string]bool)}
	for _, c := range clients {
		m.clients[c.ID] = c
	}
	return m
}

func (m *memRegistry) ActiveClients(_ context.Context) ([]domain.ClientSnapshot, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var out []domain.ClientSnapshot
	for _, c := range m.clients {
		if c.Status == domain.ClientActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRegistry) ClientByID(_ context.Context, id string) (*domain.ClientSnapshot, error) {
	if m.failIDs[id] {
		return nil, fmt.Errorf("registry timeout")
	}
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s not found", id)
	}
	return &c, nil
}

func activeClient(id string) domain.ClientSnapshot {
	return domain.ClientSnapshot{
		ID: id, Type: "individual", Status: domain.ClientActive,
		Name: "Client " + id, Email: id + "@test.com", City: "Lagos",
	}
}

func newsletterCampaign(pred domain.AudiencePredicate) *domain.Campaign {
	return &domain.Campaign{
		ID: "camp-1", Type: domain.TypeNewsletter,
		Channels: []domain.Channel{domain.ChannelEmail},
		Audience: pred,
	}
}

func TestResolveAllClients(t *testing.T) {
	reg := newMemRegistry(activeClient("a"), activeClient("b"))
	inactive := activeClient("c")
	inactive.Status = domain.ClientInactive
	reg.clients["c"] = inactive

	r := audience.NewResolver(reg)
	got, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{AllClients: true}))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active clients, got %d", len(got))
	}
}

func TestResolveEmptyPredicate(t *testing.T) {
	reg := newMemRegistry(activeClient("a"))
	r := audience.NewResolver(reg)

	got, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{}))
	if err != nil {
		t.Fatalf("empty predicate should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %d clients", len(got))
	}
}

func TestResolveSpecificIDsSkipsLookupFailures(t *testing.T) {
	reg := newMemRegistry(activeClient("a"), activeClient("b"))
	reg.failIDs["b"] = true

	r := audience.NewResolver(reg)
	got, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{
		ClientIDs: []string{"a", "b", "missing"},
	}))
	if err != nil {
		t.Fatalf("lookup failures must not abort resolution: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only client a, got %+v", got)
	}
}

func TestResolveScanFailureAborts(t *testing.T) {
	reg := newMemRegistry(activeClient("a"))
	reg.scanErr = fmt.Errorf("connection refused")

	r := audience.NewResolver(reg)
	_, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{AllClients: true}))
	if err == nil {
		t.Fatal("registry scan failure should abort resolution")
	}
}

func TestResolveDeduplicates(t *testing.T) {
	c := activeClient("a")
	c.Type = "corporate"
	c.City = "Abuja"
	reg := newMemRegistry(c)

	r := audience.NewResolver(reg)
	// Client matches both the type clause and the location clause.
	got, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{
		ClientTypes: []string{"corporate"},
		Locations:   []string{"Abuja"},
	}))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 deduplicated client, got %d", len(got))
	}
}

func TestResolveOptOutFiltering(t *testing.T) {
	optedOut := activeClient("a")
	optedOut.Preferences = domain.CommunicationPreferences{
		OptedOut: map[domain.Channel][]string{domain.ChannelEmail: {"newsletter"}},
	}
	reg := newMemRegistry(optedOut, activeClient("b"))

	r := audience.NewResolver(reg)
	got, err := r.Resolve(context.Background(), newsletterCampaign(domain.AudiencePredicate{AllClients: true}))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("opted-out client should be excluded, got %+v", got)
	}
}

func TestResolveBusinessCriticalIgnoresOptOut(t *testing.T) {
	optedOut := activeClient("a")
	optedOut.Preferences = domain.CommunicationPreferences{
		OptedOut: map[domain.Channel][]string{domain.ChannelEmail: {"*"}},
	}
	reg := newMemRegistry(optedOut)

	c := newsletterCampaign(domain.AudiencePredicate{AllClients: true})
	c.Type = domain.TypePaymentDue

	r := audience.NewResolver(reg)
	got, err := r.Resolve(context.Background(), c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatal("payment_due campaigns must bypass opt-out preferences")
	}
}

func TestMatchesClauses(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	recent := now.AddDate(0, 0, -10)
	premium := 120000.0
	snap := domain.ClientSnapshot{
		ID: "a", Type: "individual", Status: domain.ClientActive,
		TierLevel: "gold", City: "Lagos",
		PolicyTypes:    []string{"motor", "life"},
		TotalPremium:   premium,
		LifetimeClaims: 1,
		LastContact:    &recent,
	}

	cases := []struct {
		name string
		pred domain.AudiencePredicate
		want bool
	}{
		{"tier match", domain.AudiencePredicate{TierLevels: []string{"gold"}}, true},
		{"tier miss", domain.AudiencePredicate{TierLevels: []string{"platinum"}}, false},
		{"policy type match", domain.AudiencePredicate{PolicyTypes: []string{"life"}}, true},
		{"premium range match", domain.AudiencePredicate{PremiumMin: f64(100000)}, true},
		{"premium range miss", domain.AudiencePredicate{PremiumMax: f64(50000)}, false},
		{"claim bucket low", domain.AudiencePredicate{ClaimHistory: "low"}, true},
		{"claim bucket high miss", domain.AudiencePredicate{ClaimHistory: "high"}, false},
		{"recency match", domain.AudiencePredicate{InteractionDays: 30}, true},
		{"recency miss", domain.AudiencePredicate{InteractionDays: 5}, false},
		{"or across clauses", domain.AudiencePredicate{TierLevels: []string{"platinum"}, Locations: []string{"Lagos"}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := audience.Matches(tc.pred, &snap, now); got != tc.want {
				t.Fatalf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func f64(v float64) *float64 { return &v }
