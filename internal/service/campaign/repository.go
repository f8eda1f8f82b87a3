package campaign

import (
	"context"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// TransitionStatus moves a campaign from one of the expected
	// statuses to the target status, atomically. Returns
	// ErrInvalidTransition when the campaign is no longer in an
	// expected status — this is the compare-and-set guard against
	// concurrent double-approval.
	TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// SetApprovalDecision records the approver or rejection reason
	// alongside a status transition.
	SetApprovalDecision(ctx context.Context, id string, approval domain.Approval) error

	// UpdateStats caches the recomputed aggregate onto the campaign.
	UpdateStats(ctx context.Context, id string, stats domain.CampaignStats) error

	// MarkCompleted stamps the terminal status and completion time.
	MarkCompleted(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error

	// DueCampaigns returns approved or scheduled campaigns whose
	// scheduled_at has arrived.
	DueCampaigns(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status    string
	Type      string
	Automated *bool
	Limit     int
	Offset    int
}
