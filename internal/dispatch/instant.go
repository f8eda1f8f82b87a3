package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/config"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// InstantTransport sends instant messages (WhatsApp-style) through a
// provider's cloud API.
type InstantTransport struct {
	baseURL string
	apiKey  string
	phoneID string
	cost    float64
	client  *http.Client
}

// NewInstantTransport creates the instant-message transport.
func NewInstantTransport(cfg config.InstantConfig) *InstantTransport {
	return &InstantTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		phoneID: cfg.PhoneID,
		cost:    cfg.CostPerMessage,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Channel returns the instant_message channel.
func (t *InstantTransport) Channel() domain.Channel { return domain.ChannelInstant }

// ValidateConfig reports whether the transport can send.
func (t *InstantTransport) ValidateConfig() error {
	if t.apiKey == "" || t.phoneID == "" {
		return fmt.Errorf("instant-message provider not configured")
	}
	return nil
}

// Send delivers one instant message.
func (t *InstantTransport) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := t.ValidateConfig(); err != nil {
		return nil, err
	}
	if msg.Phone == "" {
		return nil, fmt.Errorf("recipient has no phone number")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                msg.Phone,
		"type":              "text",
		"text":              map[string]string{"body": msg.Body},
	})

	endpoint := fmt.Sprintf("%s/%s/messages", t.baseURL, t.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instant send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("instant provider error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	json.Unmarshal(body, &result)

	messageID := ""
	if len(result.Messages) > 0 {
		messageID = result.Messages[0].ID
	}
	return &Receipt{MessageID: messageID, Cost: t.cost, SentAt: time.Now()}, nil
}
