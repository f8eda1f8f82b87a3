// Package metrics exposes Prometheus counters for the broadcast engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_dispatch_sent_total",
		Help: "Messages accepted by a channel provider.",
	}, []string{"channel"})

	dispatchFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_dispatch_failed_total",
		Help: "Messages rejected or errored at dispatch.",
	}, []string{"channel"})

	campaignsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_campaigns_processed_total",
		Help: "Campaign processing runs by terminal status.",
	}, []string{"status"})

	automationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_automation_campaigns_total",
		Help: "Campaigns synthesized by automation triggers.",
	}, []string{"trigger"})
)

// DispatchSent increments the sent counter for a channel.
func DispatchSent(channel string) { dispatchSent.WithLabelValues(channel).Inc() }

// DispatchFailed increments the failed counter for a channel.
func DispatchFailed(channel string) { dispatchFailed.WithLabelValues(channel).Inc() }

// CampaignProcessed records a campaign reaching a terminal status.
func CampaignProcessed(status string) { campaignsProcessed.WithLabelValues(status).Inc() }

// AutomationCampaign records a trigger-synthesized campaign.
func AutomationCampaign(trigger string) { automationRuns.WithLabelValues(trigger).Inc() }
