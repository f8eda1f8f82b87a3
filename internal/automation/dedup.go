package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
)

// dedupTTL keeps guard keys past midnight so a scheduler restart just
// after the day rolls over cannot re-fire yesterday's triggers.
const dedupTTL = 48 * time.Hour

// Deduper guarantees a trigger fires at most once per day per entity,
// even when the scheduler ticks sub-daily or runs on several workers.
// The guard key is date + trigger + entity, claimed with SETNX.
type Deduper struct {
	client *redis.Client
}

func NewDeduper(client *redis.Client) *Deduper {
	return &Deduper{client: client}
}

// Claim atomically claims today's guard key for an entity. It returns
// false when another run already claimed it. Without Redis, or when
// Redis fails, the claim succeeds so automation keeps running; a
// duplicate campaign is preferable to a silent outage.
func (d *Deduper) Claim(ctx context.Context, now time.Time, trigger domain.TriggerType, entityID string) bool {
	if d.client == nil {
		return true
	}
	key := fmt.Sprintf("automation:%s:%s:%s", now.UTC().Format("2006-01-02"), trigger, entityID)
	ok, err := d.client.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		logger.Warn("automation dedup unavailable, allowing", "key", key, "error", err.Error())
		return true
	}
	return ok
}
