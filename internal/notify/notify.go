// Package notify delivers transactional email. Production sends through
// Amazon SES; local runs without a sender address log instead.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"shepherd/internal/config"
	"shepherd/internal/pkg/logger"
)

var ErrNoRecipient = errors.New("message has no recipient")

// Message is one outgoing email. Text is required; HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// Mailer sends a message and returns the provider's message ID.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// sesAPI is the part of the SES v2 client the mailer uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends through Amazon SES v2.
type SESMailer struct {
	client sesAPI
	from   string
}

// NewSESMailer builds a client from cfg. Static keys are used when both are
// set; otherwise the default AWS credential chain applies.
func NewSESMailer(ctx context.Context, cfg config.SESConfig) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESMailer{client: sesv2.NewFromConfig(awsCfg), from: cfg.FromAddress}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	body := &types.Body{Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	for name, value := range msg.Tags {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String(name), Value: aws.String(value)})
	}

	out, err := m.client.SendEmail(ctx, in)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	id := aws.ToString(out.MessageId)
	logger.Info("email sent", "to", msg.To, "message_id", id)
	return id, nil
}

// LogMailer records messages in the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	logger.Info("email not sent, no SES sender configured", "to", msg.To, "subject", msg.Subject)
	return "", nil
}

// New returns an SES mailer when cfg names a sender address and a LogMailer
// otherwise.
func New(ctx context.Context, cfg config.SESConfig) (Mailer, error) {
	if cfg.FromAddress == "" {
		return LogMailer{}, nil
	}
	return NewSESMailer(ctx, cfg)
}
