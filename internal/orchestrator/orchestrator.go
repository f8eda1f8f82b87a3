// Package orchestrator drives the end-to-end processing pipeline for
// one campaign: claim for sending, resolve the audience, fan out over
// (recipient, channel) pairs, and finalize stats and terminal state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/dispatch"
	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/metrics"
	"github.com/brokerdesk/campaign-engine/internal/personalize"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
	"github.com/brokerdesk/campaign-engine/internal/stats"
	"github.com/brokerdesk/campaign-engine/internal/variant"
)

const defaultWorkerCount = 8

// CampaignControl is the slice of the campaign service the
// orchestrator drives.
type CampaignControl interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	BeginSending(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, status domain.CampaignStatus, s domain.CampaignStats) error
}

// RecipientStore persists per-recipient dispatch records. Rows are
// unique on (campaign, client, channel) and only ever updated after
// creation.
type RecipientStore interface {
	Create(ctx context.Context, r *domain.Recipient) error
	RecordOutcome(ctx context.Context, recipientID string, out dispatch.Outcome) error
	RecipientsByCampaign(ctx context.Context, campaignID string) ([]domain.Recipient, error)
}

// Orchestrator composes the resolver, selector, personalizer and
// dispatcher into the processing pipeline.
type Orchestrator struct {
	campaigns    CampaignControl
	resolver     *audience.Resolver
	selector     *variant.Selector
	personalizer *personalize.Personalizer
	dispatcher   *dispatch.Dispatcher
	recipients   RecipientStore
	aggregator   *stats.Aggregator
	workers      int
}

func New(campaigns CampaignControl, resolver *audience.Resolver, selector *variant.Selector, dispatcher *dispatch.Dispatcher, recipients RecipientStore, workers int) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &Orchestrator{
		campaigns:    campaigns,
		resolver:     resolver,
		selector:     selector,
		personalizer: personalize.New(),
		dispatcher:   dispatcher,
		recipients:   recipients,
		aggregator:   stats.NewAggregator(recipients),
		workers:      workers,
	}
}

// job is one (client, channel) dispatch unit.
type job struct {
	snap    *domain.ClientSnapshot
	channel domain.Channel
}

// Process runs the full pipeline for one campaign. Per-recipient
// dispatch failures are recorded and never abort the batch; only
// audience resolution failure or a pipeline panic marks the whole
// campaign failed. The campaign always reaches a terminal state.
func (o *Orchestrator) Process(ctx context.Context, campaignID string) error {
	c, err := o.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
	}

	// Compare-and-set claim. A concurrent worker or a campaign in the
	// wrong state loses here, before any recipient exists.
	if err := o.campaigns.BeginSending(ctx, campaignID); err != nil {
		return fmt.Errorf("cannot begin sending campaign %s: %w", campaignID, err)
	}

	logger.Info("campaign processing started",
		"campaign_id", campaignID, "type", c.Type, "channels", len(c.Channels))

	finalStatus := domain.CampaignSent
	defer func() {
		if r := recover(); r != nil {
			logger.Error("campaign processing panicked", "campaign_id", campaignID, "panic", fmt.Sprintf("%v", r))
			finalStatus = domain.CampaignFailed
		}
		o.finalize(ctx, campaignID, finalStatus)
	}()

	snaps, err := o.resolver.Resolve(ctx, c)
	if err != nil {
		finalStatus = domain.CampaignFailed
		return fmt.Errorf("audience resolution failed for campaign %s: %w", campaignID, err)
	}

	jobs := o.expand(c, snaps)
	if len(jobs) == 0 {
		logger.Info("campaign has no eligible recipients", "campaign_id", campaignID)
		return nil
	}

	o.fanOut(ctx, c, jobs)
	return nil
}

// expand builds the (client, channel) pairs, dropping channels the
// client opted out of. Business-critical campaign types bypass
// opt-outs inside EligibleChannels.
func (o *Orchestrator) expand(c *domain.Campaign, snaps []domain.ClientSnapshot) []job {
	var jobs []job
	for i := range snaps {
		snap := &snaps[i]
		for _, ch := range audience.EligibleChannels(snap, c.Type, c.Channels) {
			jobs = append(jobs, job{snap: snap, channel: ch})
		}
	}
	return jobs
}

// fanOut processes jobs over a bounded worker pool. Every job records
// its recipient outcome independently.
func (o *Orchestrator) fanOut(ctx context.Context, c *domain.Campaign, jobs []job) {
	queue := make(chan job)
	var wg sync.WaitGroup

	workers := o.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				o.processOne(ctx, c, j)
			}
		}()
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()
}

// processOne runs variant selection, personalization, recipient
// creation and dispatch for one (client, channel) pair. Failures here
// are recorded on the recipient and never propagate. It runs on a
// worker goroutine, so a transport panic must be recovered here:
// Process's recover only covers the calling goroutine, and an escaped
// panic would strand the campaign in sending.
func (o *Orchestrator) processOne(ctx context.Context, c *domain.Campaign, j job) {
	var rec *domain.Recipient
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("recipient processing panicked",
			"campaign_id", c.ID, "client_id", j.snap.ID, "channel", j.channel,
			"panic", fmt.Sprintf("%v", r))
		if rec == nil {
			return
		}
		out := dispatch.Outcome{Status: domain.RecipientFailed, Error: fmt.Sprintf("panic: %v", r)}
		if err := o.recipients.RecordOutcome(ctx, rec.ID, out); err != nil {
			logger.Error("failed to record panic outcome",
				"campaign_id", c.ID, "recipient_id", rec.ID, "error", err.Error())
		}
	}()

	subject := c.Subject
	content := c.ContentFor(j.channel)
	variantName := ""

	if c.ABTest.Enabled {
		v, err := o.selector.Select(c.ABTest)
		if err != nil {
			logger.Warn("variant selection failed, using campaign content",
				"campaign_id", c.ID, "error", err.Error())
		} else {
			variantName = v.Name
			if v.Subject != "" {
				subject = v.Subject
			}
			if v.Content != "" {
				content = v.Content
			}
		}
	}

	subject, content = o.personalizer.RenderMessage(subject, content, j.snap)

	rec = &domain.Recipient{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		ClientID:   j.snap.ID,
		Channel:    j.channel,
		Status:     domain.RecipientPending,
		Variant:    variantName,
		Subject:    subject,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.recipients.Create(ctx, rec); err != nil {
		// Most likely a duplicate (campaign, client, channel) row from
		// an earlier partial run; skip rather than double-send.
		logger.Warn("skipping recipient, create failed",
			"campaign_id", c.ID, "client_id", j.snap.ID, "channel", j.channel, "error", err.Error())
		return
	}

	out := o.dispatcher.Dispatch(ctx, j.channel, &dispatch.Message{
		CampaignID:  c.ID,
		RecipientID: rec.ID,
		ClientID:    j.snap.ID,
		Subject:     subject,
		Body:        content,
		Email:       j.snap.Email,
		Phone:       j.snap.Phone,
	})

	if err := o.recipients.RecordOutcome(ctx, rec.ID, out); err != nil {
		logger.Error("failed to record dispatch outcome",
			"campaign_id", c.ID, "recipient_id", rec.ID, "error", err.Error())
	}
}

// finalize recomputes stats from the recipient set and stamps the
// terminal state. It always runs, including after a panic.
func (o *Orchestrator) finalize(ctx context.Context, campaignID string, status domain.CampaignStatus) {
	s, err := o.aggregator.Recompute(ctx, campaignID)
	if err != nil {
		logger.Error("failed to recompute stats during finalize",
			"campaign_id", campaignID, "error", err.Error())
	}

	if err := o.campaigns.Complete(ctx, campaignID, status, s); err != nil {
		logger.Error("failed to finalize campaign",
			"campaign_id", campaignID, "status", status, "error", err.Error())
		return
	}

	metrics.CampaignProcessed(string(status))
	logger.Info("campaign processing finished",
		"campaign_id", campaignID, "status", status,
		"sent", s.SentCount, "failed", s.FailedCount, "total", s.TotalRecipients)
}
