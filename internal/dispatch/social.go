package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brokerdesk/campaign-engine/internal/config"
	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// SocialTransport posts campaign content to the agency's social page.
// Unlike the other channels this is a broadcast per campaign rather
// than a per-client delivery; the recipient row records that the
// client's campaign included a social touchpoint.
type SocialTransport struct {
	baseURL     string
	accessToken string
	pageID      string
	client      *http.Client
}

// NewSocialTransport creates the social posting transport.
func NewSocialTransport(cfg config.SocialConfig) *SocialTransport {
	return &SocialTransport{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		pageID:      cfg.PageID,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Channel returns the social channel.
func (t *SocialTransport) Channel() domain.Channel { return domain.ChannelSocial }

// ValidateConfig reports whether the transport can post.
func (t *SocialTransport) ValidateConfig() error {
	if t.accessToken == "" || t.pageID == "" {
		return fmt.Errorf("social provider not configured")
	}
	return nil
}

// Send publishes one post.
func (t *SocialTransport) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := t.ValidateConfig(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Add("message", msg.Body)
	form.Add("access_token", t.accessToken)

	endpoint := fmt.Sprintf("%s/%s/feed", t.baseURL, t.pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("social post: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("social provider error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &result)

	return &Receipt{MessageID: result.ID, Cost: 0, SentAt: time.Now()}, nil
}
