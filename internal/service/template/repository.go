package template

import (
	"context"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// Repository is the persistence contract for templates.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Template, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Template, error)
	// ActiveByCategory returns the active template for a category, or
	// ErrNotFound when none exists.
	ActiveByCategory(ctx context.Context, category string) (*domain.Template, error)
	Create(ctx context.Context, t *domain.Template) (string, error)
	Update(ctx context.Context, t *domain.Template) error
}
