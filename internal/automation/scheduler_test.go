package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
)

type memClients struct {
	clients []domain.ClientSnapshot
}

func (m *memClients) ActiveClients(context.Context) ([]domain.ClientSnapshot, error) {
	return m.clients, nil
}

func (m *memClients) ClientByID(_ context.Context, id string) (*domain.ClientSnapshot, error) {
	for i := range m.clients {
		if m.clients[i].ID == id {
			return &m.clients[i], nil
		}
	}
	return nil, nil
}

type memTemplates struct {
	byCategory map[string]*domain.Template
}

func (m *memTemplates) ActiveByCategory(_ context.Context, category string) (*domain.Template, error) {
	t, ok := m.byCategory[category]
	if !ok {
		return nil, template.ErrNotFound
	}
	return t, nil
}

type captureCreator struct {
	mu      sync.Mutex
	created []campaign.CreateInput
}

func (c *captureCreator) Create(_ context.Context, input campaign.CreateInput) (*domain.Campaign, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, input)
	return &domain.Campaign{ID: "camp-" + input.Audience.ClientIDs[0], Status: domain.CampaignApproved}, nil
}

func birthdayClients(now time.Time) []domain.ClientSnapshot {
	bday := time.Date(1980, now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	other := bday.AddDate(0, 1, 0)
	return []domain.ClientSnapshot{
		{ID: "c1", Name: "Maria Santos", Status: domain.ClientActive, DateOfBirth: &bday},
		{ID: "c2", Name: "Acme Co", Status: domain.ClientActive, DateOfBirth: &bday},
		{ID: "c3", Name: "Jan Novak", Status: domain.ClientActive, DateOfBirth: &other},
	}
}

func newTestScheduler(templates TemplateSource, creator CampaignCreator, clients *memClients) *Scheduler {
	registry := NewHandlerRegistry()
	registry.Register(NewBirthdayHandler(clients))
	return NewScheduler(registry, templates, creator, NewDeduper(nil), nil)
}

func TestBirthdayTriggerCreatesCampaigns(t *testing.T) {
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	creator := &captureCreator{}
	templates := &memTemplates{byCategory: map[string]*domain.Template{
		"birthday": {
			ID:       "tpl-1",
			Subject:  "Happy birthday!",
			Bodies:   map[domain.Channel]string{domain.ChannelEmail: "Dear {{name}}, happy birthday!"},
			Active:   true,
			Category: "birthday",
		},
	}}

	sched := newTestScheduler(templates, creator, &memClients{clients: birthdayClients(now)})
	created := sched.RunOnce(context.Background(), now)

	if created != 2 {
		t.Fatalf("want 2 campaigns, got %d", created)
	}
	for _, in := range creator.created {
		if !in.Automation.IsAutomated || in.Automation.Trigger != domain.TriggerBirthday {
			t.Fatalf("campaign not marked automated: %+v", in.Automation)
		}
		if len(in.Audience.ClientIDs) != 1 {
			t.Fatalf("automation campaigns target one client: %+v", in.Audience)
		}
	}
}

func TestBirthdayTriggerNoTemplate(t *testing.T) {
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	creator := &captureCreator{}
	// Two clients match but no active birthday template exists: the
	// run is a silent no-op.
	sched := newTestScheduler(&memTemplates{byCategory: map[string]*domain.Template{}}, creator, &memClients{clients: birthdayClients(now)})

	created := sched.RunOnce(context.Background(), now)
	if created != 0 {
		t.Fatalf("want 0 campaigns without a template, got %d", created)
	}
	if len(creator.created) != 0 {
		t.Fatalf("creator must not be called: %d", len(creator.created))
	}
}

func TestBirthdayTriggerEmptyTemplateBodies(t *testing.T) {
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	creator := &captureCreator{}
	// A template row written behind the API can carry no channel
	// bodies; the trigger must skip it, not panic.
	templates := &memTemplates{byCategory: map[string]*domain.Template{
		"birthday": {
			ID:       "tpl-empty",
			Subject:  "Happy birthday!",
			Bodies:   map[domain.Channel]string{},
			Active:   true,
			Category: "birthday",
		},
	}}

	sched := newTestScheduler(templates, creator, &memClients{clients: birthdayClients(now)})
	if created := sched.RunOnce(context.Background(), now); created != 0 {
		t.Fatalf("want 0 campaigns for a bodiless template, got %d", created)
	}
	if len(creator.created) != 0 {
		t.Fatalf("creator must not be called: %d", len(creator.created))
	}
}

func TestDedupOncePerDay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	creator := &captureCreator{}
	templates := &memTemplates{byCategory: map[string]*domain.Template{
		"birthday": {
			ID:       "tpl-1",
			Bodies:   map[domain.Channel]string{domain.ChannelEmail: "Happy birthday"},
			Category: "birthday",
		},
	}}

	registry := NewHandlerRegistry()
	registry.Register(NewBirthdayHandler(&memClients{clients: birthdayClients(now)}))
	sched := NewScheduler(registry, templates, creator, NewDeduper(client), nil)

	if created := sched.RunOnce(context.Background(), now); created != 2 {
		t.Fatalf("first run: want 2, got %d", created)
	}
	// A second sub-daily run must not re-fire for the same clients.
	if created := sched.RunOnce(context.Background(), now.Add(time.Hour)); created != 0 {
		t.Fatalf("second run: want 0, got %d", created)
	}
	// The next day the guard keys no longer match.
	if created := sched.RunOnce(context.Background(), now.AddDate(0, 0, 1)); created != 0 {
		t.Fatalf("next day has no birthdays matching: got %d", created)
	}
}

func TestSynthesizeBindsTriggerVars(t *testing.T) {
	tpl := &domain.Template{
		ID:      "tpl-2",
		Subject: "Renews in {{days}} days",
		Bodies: map[domain.Channel]string{
			domain.ChannelEmail: "Your {{policy_type}} policy renews in {{ days }} days, {{name}}.",
		},
	}
	sched := NewScheduler(NewHandlerRegistry(), nil, nil, NewDeduper(nil), nil)
	in := sched.synthesize(NewPolicyExpiryHandler(nil), tpl, Candidate{
		ClientID: "c1",
		Title:    "Policy renewal",
		Vars:     map[string]string{"days": "30", "policy_type": "auto"},
	})

	if in.Subject != "Renews in 30 days" {
		t.Fatalf("subject: %q", in.Subject)
	}
	want := "Your auto policy renews in 30 days, {{name}}."
	if in.Content != want {
		t.Fatalf("content: %q", in.Content)
	}
	if in.Type != domain.TypePolicyRenewal {
		t.Fatalf("type: %s", in.Type)
	}
}

func TestPolicyExpiryOffsets(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 7)
	src := &memPolicies{expiring: map[string][]domain.Policy{
		expiry.Format("2006-01-02"): {{ID: "p1", ClientID: "c1", Type: "auto", ExpiresAt: &expiry}},
	}}

	h := NewPolicyExpiryHandler(src)
	got, err := h.Match(context.Background(), now)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 candidate, got %d", len(got))
	}
	if got[0].EntityID != "p1" || got[0].Vars["days"] != "7" {
		t.Fatalf("candidate: %+v", got[0])
	}
}

type memPolicies struct {
	expiring map[string][]domain.Policy
	due      map[string][]domain.Policy
}

func (m *memPolicies) ExpiringOn(_ context.Context, day time.Time) ([]domain.Policy, error) {
	return m.expiring[day.Format("2006-01-02")], nil
}

func (m *memPolicies) PaymentsDueOn(_ context.Context, day time.Time) ([]domain.Policy, error) {
	return m.due[day.Format("2006-01-02")], nil
}

func TestAnniversaryYears(t *testing.T) {
	now := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	since := time.Date(2021, 4, 10, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	clients := &memClients{clients: []domain.ClientSnapshot{
		{ID: "c1", Name: "Maria Santos", Status: domain.ClientActive, ClientSince: &since},
		{ID: "c2", Name: "New Client", Status: domain.ClientActive, ClientSince: &fresh},
	}}

	got, err := NewAnniversaryHandler(clients).Match(context.Background(), now)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("same-year clients must not match: %d", len(got))
	}
	if got[0].Vars["years"] != "5" {
		t.Fatalf("years: %+v", got[0].Vars)
	}
}
