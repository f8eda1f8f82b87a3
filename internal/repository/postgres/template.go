package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `
	id, name, category, COALESCE(subject,''), bodies, variables, active, created_at, updated_at`

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates`
	if activeOnly {
		q += ` WHERE active = true`
	}
	q += ` ORDER BY category, name`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ActiveByCategory returns the most recently updated active template
// for a category.
func (r *TemplateRepo) ActiveByCategory(ctx context.Context, category string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE category = $1 AND active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`, category)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active template for %s: %w", category, err)
	}
	return t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	bodies, _ := json.Marshal(t.Bodies)
	variables, _ := json.Marshal(t.Variables)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, category, subject, bodies, variables, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, t.ID, t.Name, t.Category, nullString(t.Subject), bodies, variables, t.Active)
	if err != nil {
		return "", fmt.Errorf("create template: %w", err)
	}
	return t.ID, nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	bodies, _ := json.Marshal(t.Bodies)
	variables, _ := json.Marshal(t.Variables)

	res, err := r.db.ExecContext(ctx, `
		UPDATE templates
		SET name = $1, category = $2, subject = $3, bodies = $4, variables = $5,
		    active = $6, updated_at = NOW()
		WHERE id = $7
	`, t.Name, t.Category, nullString(t.Subject), bodies, variables, t.Active, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func scanTemplate(s scanner) (*domain.Template, error) {
	var (
		t         domain.Template
		bodies    []byte
		variables []byte
	)
	err := s.Scan(&t.ID, &t.Name, &t.Category, &t.Subject, &bodies, &variables,
		&t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(bodies) > 0 {
		if err := json.Unmarshal(bodies, &t.Bodies); err != nil {
			return nil, fmt.Errorf("decode template bodies: %w", err)
		}
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, fmt.Errorf("decode template variables: %w", err)
		}
	}
	return &t, nil
}
