// Package notify pushes campaign state changes onto a Redis pub/sub
// channel so operator dashboards can react without polling. Delivery
// is fire-and-forget; nothing in the engine depends on it.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
)

// ChannelName is the pub/sub channel campaign events are published on.
const ChannelName = "campaign.events"

const publishTimeout = 2 * time.Second

// Event is the published payload.
type Event struct {
	CampaignID string                `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	At         time.Time             `json:"at"`
}

// RedisNotifier publishes events to Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// CampaignChanged publishes a state change. Publish failures are
// logged and swallowed.
func (n *RedisNotifier) CampaignChanged(ctx context.Context, campaignID string, status domain.CampaignStatus) {
	payload, err := json.Marshal(Event{CampaignID: campaignID, Status: status, At: time.Now().UTC()})
	if err != nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(pubCtx, ChannelName, payload).Err(); err != nil {
		logger.Warn("failed to publish campaign event",
			"campaign_id", campaignID, "status", status, "error", err.Error())
	}
}

// Noop discards all events. Used when Redis is not configured.
type Noop struct{}

func (Noop) CampaignChanged(context.Context, string, domain.CampaignStatus) {}
