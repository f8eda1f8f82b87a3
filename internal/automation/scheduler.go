package automation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/metrics"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
)

// CampaignCreator is the slice of the campaign service the scheduler
// uses to synthesize campaigns.
type CampaignCreator interface {
	Create(ctx context.Context, input campaign.CreateInput) (*domain.Campaign, error)
}

// TemplateSource resolves the active template for a trigger category.
type TemplateSource interface {
	ActiveByCategory(ctx context.Context, category string) (*domain.Template, error)
}

// Launcher hands a freshly synthesized campaign to the processing
// pipeline. Optional; without one the campaign waits for the due-check
// poller.
type Launcher interface {
	Process(ctx context.Context, campaignID string) error
}

// Scheduler runs every registered trigger handler on a fixed tick and
// manufactures one pre-approved campaign per matched entity.
type Scheduler struct {
	registry  *HandlerRegistry
	templates TemplateSource
	campaigns CampaignCreator
	dedup     *Deduper
	launcher  Launcher
}

func NewScheduler(registry *HandlerRegistry, templates TemplateSource, campaigns CampaignCreator, dedup *Deduper, launcher Launcher) *Scheduler {
	return &Scheduler{
		registry:  registry,
		templates: templates,
		campaigns: campaigns,
		dedup:     dedup,
		launcher:  launcher,
	}
}

// Run ticks until the context is cancelled. One full pass runs
// immediately on start.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	logger.Info("automation scheduler started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			logger.Info("automation scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, time.Now().UTC())
		}
	}
}

// RunOnce evaluates every registered trigger once. Per-trigger
// failures are logged and do not abort the other triggers. It returns
// the number of campaigns created.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) int {
	total := 0
	for _, h := range s.registry.Handlers() {
		created, err := s.runTrigger(ctx, h, now)
		if err != nil {
			logger.Error("automation trigger failed", "trigger", h.Trigger(), "error", err.Error())
			continue
		}
		total += created
	}
	return total
}

func (s *Scheduler) runTrigger(ctx context.Context, h Handler, now time.Time) (int, error) {
	// No active template for the category means the trigger is not in
	// use. Skip silently, match nothing, create nothing.
	tpl, err := s.templates.ActiveByCategory(ctx, h.Category())
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			logger.Debug("no active template, skipping trigger", "trigger", h.Trigger(), "category", h.Category())
			return 0, nil
		}
		return 0, err
	}
	// Rows written around the validator can have no channel bodies;
	// synthesize would have nothing to send.
	if len(tpl.Bodies) == 0 {
		logger.Warn("active template has no channel bodies, skipping trigger",
			"trigger", h.Trigger(), "template_id", tpl.ID)
		return 0, nil
	}

	candidates, err := h.Match(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	created := 0
	for _, cand := range candidates {
		entity := cand.EntityID
		if entity == "" {
			entity = cand.ClientID
		}
		if !s.dedup.Claim(ctx, now, h.Trigger(), entity) {
			continue
		}

		c, err := s.campaigns.Create(ctx, s.synthesize(h, tpl, cand))
		if err != nil {
			logger.Error("failed to synthesize campaign",
				"trigger", h.Trigger(), "client_id", cand.ClientID, "error", err.Error())
			continue
		}
		created++
		metrics.AutomationCampaign(string(h.Trigger()))
		logger.Info("automation campaign created",
			"campaign_id", c.ID, "trigger", h.Trigger(), "client_id", cand.ClientID)

		if s.launcher != nil {
			if err := s.launcher.Process(ctx, c.ID); err != nil {
				logger.Error("failed to launch automation campaign",
					"campaign_id", c.ID, "error", err.Error())
			}
		}
	}
	return created, nil
}

// synthesize builds the campaign input for one candidate: trigger vars
// bound into the template bodies, recipient tokens left for the
// personalizer.
func (s *Scheduler) synthesize(h Handler, tpl *domain.Template, cand Candidate) campaign.CreateInput {
	channels := make([]domain.Channel, 0, len(tpl.Bodies))
	for ch := range tpl.Bodies {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	channelContent := make(map[domain.Channel]string, len(channels))
	for _, ch := range channels {
		channelContent[ch] = bindVars(tpl.BodyFor(ch), cand.Vars)
	}

	primary := channelContent[channels[0]]
	if body, ok := channelContent[domain.ChannelEmail]; ok {
		primary = body
	}

	return campaign.CreateInput{
		Title:          cand.Title,
		Type:           domain.CampaignType(h.Category()),
		Channels:       channels,
		Subject:        bindVars(tpl.Subject, cand.Vars),
		Content:        primary,
		ChannelContent: channelContent,
		Audience:       domain.AudiencePredicate{ClientIDs: []string{cand.ClientID}},
		Automation: domain.AutomationConfig{
			IsAutomated: true,
			Trigger:     h.Trigger(),
			TemplateID:  tpl.ID,
		},
		CreatedBy: "automation",
	}
}

func bindVars(body string, vars map[string]string) string {
	if len(vars) == 0 || body == "" {
		return body
	}
	pairs := make([]string, 0, len(vars)*4)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value, "{{ "+name+" }}", value)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}
