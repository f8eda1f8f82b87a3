package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brokerdesk/campaign-engine/internal/approval"
	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
	"github.com/brokerdesk/campaign-engine/internal/variant"
)

// Notifier pushes campaign state changes to operator-facing views.
// Fire-and-forget: correctness never depends on it.
type Notifier interface {
	CampaignChanged(ctx context.Context, campaignID string, status domain.CampaignStatus)
}

// Service implements campaign business logic. It coordinates the
// repository, the approval gate, and the notification bus. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo     Repository
	gate     *approval.Gate
	notifier Notifier
}

// NewService creates a campaign service backed by the given repository.
// notifier may be nil.
func NewService(repo Repository, gate *approval.Gate, notifier Notifier) *Service {
	return &Service{repo: repo, gate: gate, notifier: notifier}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Title          string                    `json:"title"`
	Type           domain.CampaignType       `json:"type"`
	Channels       []domain.Channel          `json:"channels"`
	Subject        string                    `json:"subject"`
	Content        string                    `json:"content"`
	ChannelContent map[domain.Channel]string `json:"channel_content,omitempty"`
	Audience       domain.AudiencePredicate  `json:"target_audience"`
	ABTest         domain.ABTestConfig       `json:"ab_test"`
	Automation     domain.AutomationConfig   `json:"automation"`
	Budget         float64                   `json:"budget"`
	ScheduledAt    *time.Time                `json:"scheduled_at,omitempty"`
	CreatedBy      string                    `json:"created_by,omitempty"`
}

// Create validates and persists a new campaign. The approval decision
// is computed here, once, and the campaign enters pending_approval or
// approved accordingly. Automated campaigns skip the gate entirely.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrValidation)
	}
	if len(input.Channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}
	if input.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if err := variant.Validate(input.ABTest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	c := &domain.Campaign{
		ID:             uuid.New().String(),
		Title:          input.Title,
		Type:           input.Type,
		Channels:       input.Channels,
		Subject:        input.Subject,
		Content:        input.Content,
		ChannelContent: input.ChannelContent,
		Audience:       input.Audience,
		ABTest:         input.ABTest,
		Automation:     input.Automation,
		Budget:         input.Budget,
		ScheduledAt:    input.ScheduledAt,
		CreatedBy:      input.CreatedBy,
	}

	if input.Automation.IsAutomated {
		// Trigger-synthesized campaigns are pre-approved by policy.
		c.Approval = domain.Approval{Required: false, Status: "auto"}
		c.Status = domain.CampaignApproved
	} else {
		required := s.gate.Required(input.Type, input.Budget, input.Audience)
		c.Approval = domain.Approval{Required: required}
		c.Status = s.gate.InitialStatus(required)
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	logger.Info("campaign created",
		"campaign_id", c.ID, "type", c.Type, "status", c.Status,
		"approval_required", c.Approval.Required)
	s.notify(ctx, c.ID, c.Status)
	return c, nil
}

// Approve moves a pending campaign to approved. The repository's
// compare-and-set guard makes concurrent double-approval impossible:
// the second caller gets ErrNotPending.
func (s *Service) Approve(ctx context.Context, id, approver string) error {
	err := s.repo.TransitionStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignPendingApproval}, domain.CampaignApproved)
	if errors.Is(err, ErrInvalidTransition) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.SetApprovalDecision(ctx, id, domain.Approval{
		Required: true, Status: "approved", ApprovedBy: approver, ApprovedAt: &now,
	}); err != nil {
		logger.Warn("approval decision not recorded", "campaign_id", id, "error", err)
	}
	s.notify(ctx, id, domain.CampaignApproved)
	return nil
}

// Reject moves a pending campaign to rejected, recording the reason.
func (s *Service) Reject(ctx context.Context, id, approver, reason string) error {
	err := s.repo.TransitionStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignPendingApproval}, domain.CampaignRejected)
	if errors.Is(err, ErrInvalidTransition) {
		return ErrNotPending
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.SetApprovalDecision(ctx, id, domain.Approval{
		Required: true, Status: "rejected", ApprovedBy: approver, ApprovedAt: &now,
		RejectionReason: reason,
	}); err != nil {
		logger.Warn("rejection reason not recorded", "campaign_id", id, "error", err)
	}
	s.notify(ctx, id, domain.CampaignRejected)
	return nil
}

// Cancel stops a campaign that has not started sending.
func (s *Service) Cancel(ctx context.Context, id string) error {
	err := s.repo.TransitionStatus(ctx, id, []domain.CampaignStatus{
		domain.CampaignDraft, domain.CampaignPendingApproval,
		domain.CampaignApproved, domain.CampaignScheduled,
	}, domain.CampaignCancelled)
	if err != nil {
		return err
	}
	s.notify(ctx, id, domain.CampaignCancelled)
	return nil
}

// BeginSending claims an approved or scheduled campaign for dispatch.
// The compare-and-set guard ensures only one worker wins the claim;
// losers get ErrAlreadySending.
func (s *Service) BeginSending(ctx context.Context, id string) error {
	err := s.repo.TransitionStatus(ctx, id, []domain.CampaignStatus{
		domain.CampaignApproved, domain.CampaignScheduled,
	}, domain.CampaignSending)
	if errors.Is(err, ErrInvalidTransition) {
		return ErrAlreadySending
	}
	if err != nil {
		return err
	}
	s.notify(ctx, id, domain.CampaignSending)
	return nil
}

// Complete stamps the campaign's terminal status and caches the final
// stats aggregate.
func (s *Service) Complete(ctx context.Context, id string, status domain.CampaignStatus, stats domain.CampaignStats) error {
	if status != domain.CampaignSent && status != domain.CampaignFailed {
		return fmt.Errorf("%w: %s is not a completion status", ErrInvalidTransition, status)
	}
	if err := s.repo.UpdateStats(ctx, id, stats); err != nil {
		logger.Warn("stats cache not written", "campaign_id", id, "error", err)
	}
	if err := s.repo.MarkCompleted(ctx, id, status, time.Now()); err != nil {
		return err
	}
	s.notify(ctx, id, status)
	return nil
}

// DueCampaigns returns campaigns ready for dispatch.
func (s *Service) DueCampaigns(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	return s.repo.DueCampaigns(ctx, now, limit)
}

func (s *Service) notify(ctx context.Context, id string, status domain.CampaignStatus) {
	if s.notifier != nil {
		s.notifier.CampaignChanged(ctx, id, status)
	}
}
