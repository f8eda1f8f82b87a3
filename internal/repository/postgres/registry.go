package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/brokerdesk/campaign-engine/internal/automation"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// ClientRegistry is the read-only adapter over the back-office client
// and policy tables. The engine never writes through it.
type ClientRegistry struct{ db *sql.DB }

func NewClientRegistry(db *sql.DB) *ClientRegistry { return &ClientRegistry{db: db} }

const clientColumns = `
	c.id, c.type, c.status, c.name,
	COALESCE(c.first_name,''), COALESCE(c.contact_person,''),
	c.email, COALESCE(c.phone,''), COALESCE(c.city,''), COALESCE(c.tier_level,''),
	c.date_of_birth, c.client_since, c.last_contact,
	COALESCE(c.preferences, '{}'),
	COALESCE(p.policy_types, '{}'), COALESCE(p.policy_count, 0),
	COALESCE(p.total_premium, 0), COALESCE(cl.open_claims, 0), COALESCE(cl.lifetime_claims, 0)`

const clientJoins = `
	FROM clients c
	LEFT JOIN LATERAL (
		SELECT array_agg(DISTINCT type) AS policy_types,
		       COUNT(*) AS policy_count,
		       SUM(premium) AS total_premium
		FROM policies WHERE client_id = c.id AND status = 'active'
	) p ON true
	LEFT JOIN LATERAL (
		SELECT COUNT(*) FILTER (WHERE status NOT IN ('closed','rejected')) AS open_claims,
		       COUNT(*) AS lifetime_claims
		FROM claims WHERE client_id = c.id
	) cl ON true`

func (r *ClientRegistry) ActiveClients(ctx context.Context) ([]domain.ClientSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+clientJoins+` WHERE c.status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("query active clients: %w", err)
	}
	defer rows.Close()

	var out []domain.ClientSnapshot
	for rows.Next() {
		snap, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (r *ClientRegistry) ClientByID(ctx context.Context, id string) (*domain.ClientSnapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+clientJoins+` WHERE c.id = $1`, id)
	snap, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return snap, nil
}

func scanClient(s scanner) (*domain.ClientSnapshot, error) {
	var (
		snap        domain.ClientSnapshot
		preferences []byte
		policyTypes pq.StringArray
	)
	err := s.Scan(
		&snap.ID, &snap.Type, &snap.Status, &snap.Name,
		&snap.FirstName, &snap.ContactPerson,
		&snap.Email, &snap.Phone, &snap.City, &snap.TierLevel,
		&snap.DateOfBirth, &snap.ClientSince, &snap.LastContact,
		&preferences,
		&policyTypes, &snap.PolicyCount,
		&snap.TotalPremium, &snap.OpenClaims, &snap.LifetimeClaims,
	)
	if err != nil {
		return nil, err
	}
	snap.PolicyTypes = policyTypes
	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &snap.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &snap, nil
}

// PolicyRegistry serves the automation triggers' policy date lookups.
type PolicyRegistry struct{ db *sql.DB }

func NewPolicyRegistry(db *sql.DB) *PolicyRegistry { return &PolicyRegistry{db: db} }

func (r *PolicyRegistry) ExpiringOn(ctx context.Context, day time.Time) ([]domain.Policy, error) {
	return r.policiesByDate(ctx, "expires_at", day)
}

func (r *PolicyRegistry) PaymentsDueOn(ctx context.Context, day time.Time) ([]domain.Policy, error) {
	return r.policiesByDate(ctx, "next_due_at", day)
}

func (r *PolicyRegistry) policiesByDate(ctx context.Context, column string, day time.Time) ([]domain.Policy, error) {
	// column is one of two fixed names above, never caller input.
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, client_id, type, status, premium, expires_at, next_due_at
		FROM policies
		WHERE status = 'active' AND %s::date = $1::date
	`, column), day)
	if err != nil {
		return nil, fmt.Errorf("query policies by %s: %w", column, err)
	}
	defer rows.Close()

	var out []domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Type, &p.Status, &p.Premium,
			&p.ExpiresAt, &p.NextDueAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimRegistry reports recent claim status changes for the
// claim-update trigger.
type ClaimRegistry struct{ db *sql.DB }

func NewClaimRegistry(db *sql.DB) *ClaimRegistry { return &ClaimRegistry{db: db} }

func (r *ClaimRegistry) UpdatedSince(ctx context.Context, since time.Time) ([]automation.ClaimEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, status
		FROM claims
		WHERE updated_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query claim updates: %w", err)
	}
	defer rows.Close()

	var out []automation.ClaimEvent
	for rows.Next() {
		var ev automation.ClaimEvent
		if err := rows.Scan(&ev.ClaimID, &ev.ClientID, &ev.Status); err != nil {
			return nil, fmt.Errorf("scan claim event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
