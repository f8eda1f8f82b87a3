// Package stats recomputes campaign-level aggregates from the
// recipient set. The recipient rows are the authoritative record;
// everything here is a derived cache and safe to recompute at any time.
package stats

import (
	"context"
	"fmt"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// RecipientSource provides the recipient rows for one campaign.
type RecipientSource interface {
	RecipientsByCampaign(ctx context.Context, campaignID string) ([]domain.Recipient, error)
}

// Aggregator recomputes CampaignStats on demand.
type Aggregator struct {
	source RecipientSource
}

func NewAggregator(source RecipientSource) *Aggregator {
	return &Aggregator{source: source}
}

// Recompute fetches the campaign's recipients and folds them into a
// fresh CampaignStats.
func (a *Aggregator) Recompute(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	recipients, err := a.source.RecipientsByCampaign(ctx, campaignID)
	if err != nil {
		return domain.CampaignStats{}, fmt.Errorf("failed to load recipients for %s: %w", campaignID, err)
	}
	return Compute(recipients), nil
}

// Compute folds a recipient set into campaign-level stats. Engagement
// statuses are cumulative: an opened recipient was necessarily sent and
// delivered, a converted one was sent, delivered, opened and clicked.
func Compute(recipients []domain.Recipient) domain.CampaignStats {
	s := domain.CampaignStats{TotalRecipients: len(recipients)}

	var engagement float64
	for i := range recipients {
		r := &recipients[i]
		s.Cost += r.Cost
		s.Revenue += r.Revenue
		engagement += r.EngagementScore()

		switch r.Status {
		case domain.RecipientSent:
			s.SentCount++
		case domain.RecipientDelivered:
			s.SentCount++
			s.DeliveredCount++
		case domain.RecipientOpened:
			s.SentCount++
			s.DeliveredCount++
			s.OpenedCount++
		case domain.RecipientClicked:
			s.SentCount++
			s.DeliveredCount++
			s.OpenedCount++
			s.ClickedCount++
		case domain.RecipientConverted:
			s.SentCount++
			s.DeliveredCount++
			s.OpenedCount++
			s.ClickedCount++
			s.ConvertedCount++
		case domain.RecipientFailed, domain.RecipientBounced:
			s.FailedCount++
		case domain.RecipientOptedOut:
			s.OptedOutCount++
		}
	}

	s.ROI = roi(s.Cost, s.Revenue)
	if len(recipients) > 0 {
		s.AvgEngagement = engagement / float64(len(recipients))
	}
	return s
}

// roi returns the return on investment as a percentage. A campaign
// with zero cost has no meaningful ROI and reports 0 regardless of
// revenue.
func roi(cost, revenue float64) float64 {
	if cost <= 0 {
		return 0
	}
	return (revenue - cost) / cost * 100
}
