package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brokerdesk/campaign-engine/internal/dispatch"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// RecipientRepo persists per-recipient dispatch records. The unique
// index on (campaign_id, client_id, channel) is the isolation guard
// against double-sending when a campaign run is retried.
type RecipientRepo struct{ db *sql.DB }

func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) Create(ctx context.Context, rec *domain.Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_recipients
			(id, campaign_id, client_id, channel, status, variant, subject, content,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (campaign_id, client_id, channel) DO NOTHING
	`, rec.ID, rec.CampaignID, rec.ClientID, rec.Channel, rec.Status,
		nullString(rec.Variant), rec.Subject, rec.Content)
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("recipient already exists for campaign %s client %s channel %s",
			rec.CampaignID, rec.ClientID, rec.Channel)
	}
	return nil
}

// RecordOutcome writes the dispatch result onto the recipient row.
func (r *RecipientRepo) RecordOutcome(ctx context.Context, recipientID string, out dispatch.Outcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $1, message_id = $2, cost = $3, error = $4, sent_at = $5, updated_at = NOW()
		WHERE id = $6
	`, out.Status, nullString(out.MessageID), out.Cost, nullString(out.Error), out.SentAt, recipientID)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("recipient %s not found", recipientID)
	}
	return nil
}

func (r *RecipientRepo) RecipientsByCampaign(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, client_id, channel, status,
		       COALESCE(variant,''), subject, content,
		       COALESCE(message_id,''), cost, COALESCE(error,''), retry_count,
		       open_count, click_count,
		       COALESCE(policy_id,''), revenue, commission,
		       sent_at, delivered_at, converted_at, created_at, updated_at
		FROM campaign_recipients
		WHERE campaign_id = $1
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.ClientID, &rec.Channel, &rec.Status,
			&rec.Variant, &rec.Subject, &rec.Content,
			&rec.MessageID, &rec.Cost, &rec.Error, &rec.RetryCount,
			&rec.OpenCount, &rec.ClickCount,
			&rec.PolicyID, &rec.Revenue, &rec.Commission,
			&rec.SentAt, &rec.DeliveredAt, &rec.ConvertedAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordEngagement advances a recipient's engagement funnel from a
// provider event. Terminal failure states are never downgraded.
func (r *RecipientRepo) RecordEngagement(ctx context.Context, recipientID string, event domain.RecipientStatus, at time.Time) error {
	var (
		q    string
		args []interface{}
	)
	switch event {
	case domain.RecipientDelivered:
		q = `UPDATE campaign_recipients
		     SET status = 'delivered', delivered_at = $2, updated_at = NOW()
		     WHERE id = $1 AND status = 'sent'`
		args = []interface{}{recipientID, at}
	case domain.RecipientOpened:
		q = `UPDATE campaign_recipients
		     SET status = 'opened', open_count = open_count + 1, updated_at = NOW()
		     WHERE id = $1 AND status IN ('sent','delivered','opened')`
		args = []interface{}{recipientID}
	case domain.RecipientClicked:
		q = `UPDATE campaign_recipients
		     SET status = 'clicked', click_count = click_count + 1, updated_at = NOW()
		     WHERE id = $1 AND status IN ('sent','delivered','opened','clicked')`
		args = []interface{}{recipientID}
	default:
		return fmt.Errorf("unsupported engagement event %q", event)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record engagement: %w", err)
	}
	return nil
}

// RecordConversion links a recipient to a purchased policy.
func (r *RecipientRepo) RecordConversion(ctx context.Context, recipientID, policyID string, revenue, commission float64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'converted', policy_id = $2, revenue = $3, commission = $4,
		    converted_at = $5, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('failed','bounced','opted_out')
	`, recipientID, policyID, revenue, commission, at)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("recipient %s not convertible", recipientID)
	}
	return nil
}
