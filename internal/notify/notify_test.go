package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/config"
)

type fakeSES struct {
	got *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_Send(t *testing.T) {
	fake := &fakeSES{}
	m := &SESMailer{client: fake, from: "Trinity Lutheran <office@trinity.example>"}

	id, err := m.Send(context.Background(), Message{
		To:      "ruth@example.org",
		Subject: "You're invited",
		Text:    "Accept: https://example.org/accept?token=abc",
		Tags:    map[string]string{"kind": "invitation"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.NotNil(t, fake.got)
	assert.Equal(t, "Trinity Lutheran <office@trinity.example>", aws.ToString(fake.got.FromEmailAddress))
	assert.Equal(t, []string{"ruth@example.org"}, fake.got.Destination.ToAddresses)
	assert.Equal(t, "You're invited", aws.ToString(fake.got.Content.Simple.Subject.Data))
	assert.Nil(t, fake.got.Content.Simple.Body.Html)
	require.Len(t, fake.got.EmailTags, 1)
	assert.Equal(t, "invitation", aws.ToString(fake.got.EmailTags[0].Value))
}

func TestSESMailer_Errors(t *testing.T) {
	m := &SESMailer{client: &fakeSES{err: errors.New("throttled")}, from: "office@trinity.example"}

	_, err := m.Send(context.Background(), Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = m.Send(context.Background(), Message{To: "ruth@example.org", Text: "hi"})
	assert.ErrorContains(t, err, "throttled")
}

func TestNew_FallsBackToLog(t *testing.T) {
	m, err := New(context.Background(), config.SESConfig{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, LogMailer{}, m)

	id, err := m.Send(context.Background(), Message{To: "ruth@example.org"})
	require.NoError(t, err)
	assert.Empty(t, id)
}
