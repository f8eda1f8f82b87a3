package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
)

// pollBatchSize bounds how many due campaigns one poll claims.
const pollBatchSize = 20

// DueSource lists approved or scheduled campaigns whose send time has
// arrived.
type DueSource interface {
	DueCampaigns(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// Poller periodically picks up due campaigns and runs them through the
// orchestrator. The BeginSending compare-and-set inside Process makes
// it safe to run pollers on several workers at once.
type Poller struct {
	due          DueSource
	orchestrator *Orchestrator
}

func NewPoller(due DueSource, o *Orchestrator) *Poller {
	return &Poller{due: due, orchestrator: o}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	logger.Info("due-campaign poller started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("due-campaign poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx, time.Now().UTC())
		}
	}
}

// PollOnce claims and processes every currently due campaign. It
// returns the number of campaigns processed.
func (p *Poller) PollOnce(ctx context.Context, now time.Time) int {
	due, err := p.due.DueCampaigns(ctx, now, pollBatchSize)
	if err != nil {
		logger.Error("failed to list due campaigns", "error", err.Error())
		return 0
	}

	processed := 0
	for i := range due {
		if err := p.orchestrator.Process(ctx, due[i].ID); err != nil {
			if errors.Is(err, campaign.ErrAlreadySending) {
				// Another worker won the claim; the campaign is
				// already being handled.
				logger.Debug("due campaign claimed elsewhere", "campaign_id", due[i].ID)
				continue
			}
			logger.Warn("due campaign not processed", "campaign_id", due[i].ID, "error", err.Error())
			continue
		}
		processed++
	}
	return processed
}
