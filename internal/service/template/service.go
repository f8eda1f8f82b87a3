package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
)

// Service validates and persists templates and resolves the active
// template for an automation trigger's category.
type Service struct {
	repo      Repository
	validator *Validator
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: NewValidator()}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	return s.repo.List(ctx, activeOnly)
}

// ActiveByCategory returns the active template for a campaign
// category. Callers in the automation path treat ErrNotFound as a
// silent skip, not a failure.
func (s *Service) ActiveByCategory(ctx context.Context, category string) (*domain.Template, error) {
	return s.repo.ActiveByCategory(ctx, category)
}

// Create validates and stores a new template. Undeclared-variable
// warnings are returned alongside the template; they do not block the
// save.
func (s *Service) Create(ctx context.Context, t *domain.Template) (*domain.Template, []string, error) {
	warnings, err := s.validator.Validate(t)
	if err != nil {
		return nil, nil, err
	}

	t.ID = uuid.New().String()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create template: %w", err)
	}
	t.ID = id

	logger.Info("template created",
		"template_id", t.ID, "category", t.Category, "warnings", len(warnings))
	return t, warnings, nil
}

// Update revalidates and stores an existing template.
func (s *Service) Update(ctx context.Context, t *domain.Template) ([]string, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	warnings, err := s.validator.Validate(t)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return warnings, nil
}
