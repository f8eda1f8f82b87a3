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

// SMSTransport sends text messages through an HTTP SMS gateway.
type SMSTransport struct {
	baseURL  string
	apiKey   string
	senderID string
	cost     float64
	client   *http.Client
}

// NewSMSTransport creates the SMS transport.
func NewSMSTransport(cfg config.SMSConfig) *SMSTransport {
	return &SMSTransport{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		cost:     cfg.CostPerMessage,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Channel returns the sms channel.
func (t *SMSTransport) Channel() domain.Channel { return domain.ChannelSMS }

// ValidateConfig reports whether the transport can send.
func (t *SMSTransport) ValidateConfig() error {
	if t.apiKey == "" {
		return fmt.Errorf("SMS API key not configured")
	}
	if t.baseURL == "" {
		return fmt.Errorf("SMS gateway base URL not configured")
	}
	return nil
}

// Send delivers one SMS. The subject is dropped; SMS carries body only.
func (t *SMSTransport) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := t.ValidateConfig(); err != nil {
		return nil, err
	}
	if msg.Phone == "" {
		return nil, fmt.Errorf("recipient has no phone number")
	}

	payload, _ := json.Marshal(map[string]string{
		"to":        msg.Phone,
		"from":      t.senderID,
		"body":      msg.Body,
		"reference": msg.RecipientID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/messages", strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sms gateway error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		MessageID string   `json:"message_id"`
		Cost      *float64 `json:"cost"`
	}
	json.Unmarshal(body, &result)

	cost := t.cost
	if result.Cost != nil {
		cost = *result.Cost
	}
	return &Receipt{MessageID: result.MessageID, Cost: cost, SentAt: time.Now()}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
