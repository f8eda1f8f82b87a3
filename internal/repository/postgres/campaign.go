// Package postgres contains the PostgreSQL implementations of the
// engine's persistence contracts. Structured sub-records (audience
// predicate, A/B config, stats) are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, title, type, channels, subject, content, channel_content,
	audience, ab_test, automation,
	approval_required, approval_status, COALESCE(approved_by,''), approved_at, COALESCE(rejection_reason,''),
	budget, status, scheduled_at, stats,
	COALESCE(created_by,''), started_at, completed_at, created_at, updated_at`

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.Automated != nil {
		where += fmt.Sprintf(" AND (automation->>'is_automated')::boolean = $%d", idx)
		args = append(args, *f.Automated)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		campaignColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	channels, _ := json.Marshal(c.Channels)
	channelContent, _ := json.Marshal(c.ChannelContent)
	audience, _ := json.Marshal(c.Audience)
	abTest, _ := json.Marshal(c.ABTest)
	automation, _ := json.Marshal(c.Automation)
	stats, _ := json.Marshal(c.Stats)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, title, type, channels, subject, content, channel_content,
			 audience, ab_test, automation,
			 approval_required, approval_status, budget, status, scheduled_at,
			 stats, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
	`, c.ID, c.Title, c.Type, channels, c.Subject, c.Content, channelContent,
		audience, abTest, automation,
		c.Approval.Required, c.Approval.Status, c.Budget, c.Status, c.ScheduledAt,
		stats, c.CreatedBy)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// TransitionStatus is the compare-and-set core of the state machine:
// the row only changes when its current status is still one of the
// expected ones, so two concurrent approvals cannot both win.
func (r *CampaignRepo) TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	extra := ""
	if to == domain.CampaignSending {
		extra = ", started_at = NOW()"
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()`+extra+`
		WHERE id = $2 AND status = ANY($3)
	`, to, id, pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish a missing campaign from a lost race.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("transition status: %w", err)
		}
		if !exists {
			return campaign.ErrNotFound
		}
		return campaign.ErrInvalidTransition
	}
	return nil
}

func (r *CampaignRepo) SetApprovalDecision(ctx context.Context, id string, a domain.Approval) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET approval_status = $1, approved_by = $2, approved_at = $3,
		    rejection_reason = $4, updated_at = NOW()
		WHERE id = $5
	`, a.Status, nullString(a.ApprovedBy), a.ApprovedAt, nullString(a.RejectionReason), id)
	if err != nil {
		return fmt.Errorf("set approval decision: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) UpdateStats(ctx context.Context, id string, stats domain.CampaignStats) error {
	payload, _ := json.Marshal(stats)
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET stats = $1, updated_at = NOW() WHERE id = $2
	`, payload, id)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkCompleted(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, completed_at = $2, updated_at = NOW()
		WHERE id = $3
	`, status, at, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) DueCampaigns(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status IN ('approved','scheduled')
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY scheduled_at NULLS FIRST
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(s scanner) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		channels       []byte
		channelContent []byte
		audience       []byte
		abTest         []byte
		automation     []byte
		stats          []byte
	)
	err := s.Scan(
		&c.ID, &c.Title, &c.Type, &channels, &c.Subject, &c.Content, &channelContent,
		&audience, &abTest, &automation,
		&c.Approval.Required, &c.Approval.Status, &c.Approval.ApprovedBy, &c.Approval.ApprovedAt, &c.Approval.RejectionReason,
		&c.Budget, &c.Status, &c.ScheduledAt, &stats,
		&c.CreatedBy, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		raw []byte
		dst interface{}
	}{
		{channels, &c.Channels},
		{channelContent, &c.ChannelContent},
		{audience, &c.Audience},
		{abTest, &c.ABTest},
		{automation, &c.Automation},
		{stats, &c.Stats},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("decode campaign field: %w", err)
		}
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
