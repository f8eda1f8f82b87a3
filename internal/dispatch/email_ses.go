package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/brokerdesk/campaign-engine/internal/config"
	"github.com/brokerdesk/campaign-engine/internal/domain"
	"github.com/brokerdesk/campaign-engine/internal/pkg/logger"
)

// sesCostPerMessage is the flat SES price attributed to each send for
// campaign cost accounting.
const sesCostPerMessage = 0.0001

// SESTransport sends email via AWS SES using the SDK v2.
type SESTransport struct {
	fromName  string
	fromEmail string
	client    *sesv2.Client
}

// NewSESTransport creates the email transport. Initializes the AWS SDK
// client if credentials are provided; falls back to the default
// credential chain otherwise.
func NewSESTransport(cfg config.SESConfig) *SESTransport {
	t := &SESTransport{
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		logger.Warn("failed to initialize AWS config", "error", err)
		return t
	}
	t.client = sesv2.NewFromConfig(awsCfg)
	return t
}

// Channel returns the email channel.
func (t *SESTransport) Channel() domain.Channel { return domain.ChannelEmail }

// ValidateConfig reports whether the transport can send.
func (t *SESTransport) ValidateConfig() error {
	if t.client == nil {
		return fmt.Errorf("SES client not initialized - check credentials")
	}
	if t.fromEmail == "" {
		return fmt.Errorf("SES from_email not configured")
	}
	return nil
}

// Send delivers one email through AWS SES.
func (t *SESTransport) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := t.ValidateConfig(); err != nil {
		return nil, err
	}
	if msg.Email == "" {
		return nil, fmt.Errorf("recipient has no email address")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", t.fromName, t.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("recipient_id"), Value: aws.String(msg.RecipientID)},
		},
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	logger.Debug("email dispatched", "email", msg.Email, "message_id", messageID)

	return &Receipt{MessageID: messageID, Cost: sesCostPerMessage, SentAt: time.Now()}, nil
}
