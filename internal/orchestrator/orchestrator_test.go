package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/dispatch"
	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/variant"
)

// memControl is an in-memory campaign control with the same
// compare-and-set semantics as the real repository.
type memControl struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newMemControl(cs ...*domain.Campaign) *memControl {
	m := &memControl{campaigns: make(map[string]*domain.Campaign)}
	for _, c := range cs {
		m.campaigns[c.ID] = c
	}
	return m
}

func (m *memControl) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memControl) BeginSending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return errors.New("not found")
	}
	if c.Status != domain.CampaignApproved && c.Status != domain.CampaignScheduled {
		return campaign.ErrAlreadySending
	}
	c.Status = domain.CampaignSending
	return nil
}

func (m *memControl) Complete(_ context.Context, id string, status domain.CampaignStatus, s domain.CampaignStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return errors.New("not found")
	}
	c.Status = status
	c.Stats = s
	return nil
}

type memRecipients struct {
	mu   sync.Mutex
	rows map[string]*domain.Recipient
	keys map[string]bool // campaign|client|channel uniqueness
}

func newMemRecipients() *memRecipients {
	return &memRecipients{rows: make(map[string]*domain.Recipient), keys: make(map[string]bool)}
}

func (m *memRecipients) Create(_ context.Context, r *domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.CampaignID + "|" + r.ClientID + "|" + string(r.Channel)
	if m.keys[key] {
		return errors.New("duplicate recipient")
	}
	m.keys[key] = true
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memRecipients) RecordOutcome(_ context.Context, id string, out dispatch.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return errors.New("not found")
	}
	r.Status = out.Status
	r.MessageID = out.MessageID
	r.Cost = out.Cost
	r.Error = out.Error
	r.SentAt = out.SentAt
	return nil
}

func (m *memRecipients) RecipientsByCampaign(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Recipient
	for _, r := range m.rows {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memRegistry struct {
	clients []domain.ClientSnapshot
}

func (m *memRegistry) ActiveClients(context.Context) ([]domain.ClientSnapshot, error) {
	return m.clients, nil
}

func (m *memRegistry) ClientByID(_ context.Context, id string) (*domain.ClientSnapshot, error) {
	for i := range m.clients {
		if m.clients[i].ID == id {
			return &m.clients[i], nil
		}
	}
	return nil, errors.New("not found")
}

// flakyTransport fails for one specific client and succeeds otherwise.
type flakyTransport struct {
	failFor string
}

func (t *flakyTransport) Channel() domain.Channel { return domain.ChannelEmail }
func (t *flakyTransport) ValidateConfig() error   { return nil }

func (t *flakyTransport) Send(_ context.Context, msg *dispatch.Message) (*dispatch.Receipt, error) {
	if msg.ClientID == t.failFor {
		return nil, fmt.Errorf("provider rejected message for %s", msg.ClientID)
	}
	now := time.Now()
	return &dispatch.Receipt{MessageID: "msg-" + msg.ClientID, Cost: 0.01, SentAt: now}, nil
}

func threeClients() []domain.ClientSnapshot {
	return []domain.ClientSnapshot{
		{ID: "c1", Name: "Maria Santos", Status: domain.ClientActive, Email: "maria@test.com"},
		{ID: "c2", Name: "Jan Novak", Status: domain.ClientActive, Email: "jan@test.com"},
		{ID: "c3", Name: "Acme Co", Status: domain.ClientActive, Email: "ops@acme.test"},
	}
}

func emailCampaign(id string) *domain.Campaign {
	return &domain.Campaign{
		ID:       id,
		Title:    "Renewal reminder",
		Type:     domain.TypeReminder,
		Status:   domain.CampaignApproved,
		Channels: []domain.Channel{domain.ChannelEmail},
		Subject:  "Hello {{first_name}}",
		Content:  "Hi {{name}}, your policy needs attention.",
		Audience: domain.AudiencePredicate{AllClients: true},
	}
}

func newOrchestrator(control *memControl, recipients *memRecipients, transport dispatch.Transport, clients []domain.ClientSnapshot) *Orchestrator {
	registry := dispatch.NewRegistry()
	registry.Register(transport)
	dispatcher := dispatch.NewDispatcher(registry, nil, time.Second)
	resolver := audience.NewResolver(&memRegistry{clients: clients})
	return New(control, resolver, variant.NewSelector(1), dispatcher, recipients, 4)
}

func TestProcessIsolatesDispatchFailure(t *testing.T) {
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	recipients := newMemRecipients()
	// One of three sends fails; the campaign still completes as sent.
	o := newOrchestrator(control, recipients, &flakyTransport{failFor: "c2"}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := control.Get(context.Background(), "camp-1")
	if got.Status != domain.CampaignSent {
		t.Fatalf("want sent, got %s", got.Status)
	}
	if got.Stats.SentCount != 2 || got.Stats.FailedCount != 1 {
		t.Fatalf("stats: %+v", got.Stats)
	}
	if got.Stats.TotalRecipients != 3 {
		t.Fatalf("total: %d", got.Stats.TotalRecipients)
	}

	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	for _, r := range rows {
		if r.ClientID == "c2" {
			if r.Status != domain.RecipientFailed || r.Error == "" {
				t.Fatalf("failed recipient not recorded: %+v", r)
			}
		} else if r.Status != domain.RecipientSent {
			t.Fatalf("recipient %s: %+v", r.ClientID, r)
		}
	}
}

func TestProcessPersonalizesContent(t *testing.T) {
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	recipients := newMemRecipients()
	o := newOrchestrator(control, recipients, &flakyTransport{}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	for _, r := range rows {
		if r.ClientID == "c3" && r.Content != "Hi Acme Co, your policy needs attention." {
			t.Fatalf("content snapshot: %q", r.Content)
		}
	}
}

func TestProcessSingleClaim(t *testing.T) {
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	o := newOrchestrator(control, newMemRecipients(), &flakyTransport{}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	// The campaign is terminal now; reprocessing loses the claim.
	if err := o.Process(context.Background(), "camp-1"); err == nil {
		t.Fatal("second process must fail the sending claim")
	}
}

// panickingTransport panics mid-batch for one client, the way a buggy
// provider SDK would.
type panickingTransport struct {
	panicFor string
}

func (t *panickingTransport) Channel() domain.Channel { return domain.ChannelEmail }
func (t *panickingTransport) ValidateConfig() error   { return nil }

func (t *panickingTransport) Send(_ context.Context, msg *dispatch.Message) (*dispatch.Receipt, error) {
	if msg.ClientID == t.panicFor {
		panic("provider SDK blew up")
	}
	now := time.Now()
	return &dispatch.Receipt{MessageID: "msg-" + msg.ClientID, Cost: 0.01, SentAt: now}, nil
}

func TestProcessFinalizesAfterTransportPanic(t *testing.T) {
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	recipients := newMemRecipients()
	// Dispatch runs on worker goroutines; a transport panic there must
	// not crash the process or strand the campaign in sending.
	o := newOrchestrator(control, recipients, &panickingTransport{panicFor: "c2"}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := control.Get(context.Background(), "camp-1")
	if got.Status != domain.CampaignSent {
		t.Fatalf("campaign must reach a terminal state, got %s", got.Status)
	}
	if got.Stats.SentCount != 2 || got.Stats.FailedCount != 1 || got.Stats.TotalRecipients != 3 {
		t.Fatalf("stats: %+v", got.Stats)
	}

	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	for _, r := range rows {
		if r.ClientID == "c2" {
			if r.Status != domain.RecipientFailed || r.Error == "" {
				t.Fatalf("panicked recipient not recorded as failed: %+v", r)
			}
		}
	}
}

func TestProcessSkipsOptedOutChannel(t *testing.T) {
	clients := threeClients()
	clients[1].Preferences = domain.CommunicationPreferences{
		OptedOut: map[domain.Channel][]string{domain.ChannelEmail: {"*"}},
	}
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	recipients := newMemRecipients()
	o := newOrchestrator(control, recipients, &flakyTransport{}, clients)

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	if len(rows) != 2 {
		t.Fatalf("opted-out client must have no recipient row: %d", len(rows))
	}
	got, _ := control.Get(context.Background(), "camp-1")
	if got.Stats.TotalRecipients != 2 {
		t.Fatalf("total: %d", got.Stats.TotalRecipients)
	}
}

func TestProcessBusinessCriticalBypassesOptOut(t *testing.T) {
	clients := threeClients()
	for i := range clients {
		clients[i].Preferences = domain.CommunicationPreferences{
			OptedOut: map[domain.Channel][]string{domain.ChannelEmail: {"*"}},
		}
	}
	c := emailCampaign("camp-1")
	c.Type = domain.TypePaymentDue
	control := newMemControl(c)
	recipients := newMemRecipients()
	o := newOrchestrator(control, recipients, &flakyTransport{}, clients)

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	if len(rows) != 3 {
		t.Fatalf("payment_due must bypass opt-outs: %d", len(rows))
	}
}

func TestProcessEmptyAudience(t *testing.T) {
	c := emailCampaign("camp-1")
	c.Audience = domain.AudiencePredicate{} // no clauses, allClients=false
	control := newMemControl(c)
	o := newOrchestrator(control, newMemRecipients(), &flakyTransport{}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := control.Get(context.Background(), "camp-1")
	if got.Status != domain.CampaignSent || got.Stats.TotalRecipients != 0 {
		t.Fatalf("empty audience must still finish: %s %+v", got.Status, got.Stats)
	}
}

func TestProcessVariantRecorded(t *testing.T) {
	c := emailCampaign("camp-1")
	c.ABTest = domain.ABTestConfig{
		Enabled: true,
		Variants: []domain.Variant{
			{Name: "A", Subject: "Subject A", Percentage: 50},
			{Name: "B", Subject: "Subject B", Percentage: 50},
		},
	}
	control := newMemControl(c)
	recipients := newMemRecipients()
	o := newOrchestrator(control, recipients, &flakyTransport{}, threeClients())

	if err := o.Process(context.Background(), "camp-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	rows, _ := recipients.RecipientsByCampaign(context.Background(), "camp-1")
	for _, r := range rows {
		if r.Variant != "A" && r.Variant != "B" {
			t.Fatalf("variant not recorded: %+v", r)
		}
	}
}

type dueList struct {
	campaigns []domain.Campaign
}

func (d *dueList) DueCampaigns(context.Context, time.Time, int) ([]domain.Campaign, error) {
	return d.campaigns, nil
}

func TestPollerProcessesDue(t *testing.T) {
	c := emailCampaign("camp-1")
	control := newMemControl(c)
	o := newOrchestrator(control, newMemRecipients(), &flakyTransport{}, threeClients())
	p := NewPoller(&dueList{campaigns: []domain.Campaign{*c}}, o)

	if n := p.PollOnce(context.Background(), time.Now()); n != 1 {
		t.Fatalf("want 1 processed, got %d", n)
	}
	// The campaign is terminal; the next poll skips it without error.
	if n := p.PollOnce(context.Background(), time.Now()); n != 0 {
		t.Fatalf("want 0 on second poll, got %d", n)
	}
}
