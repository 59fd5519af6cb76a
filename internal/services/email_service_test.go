package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func newTestEmailService(t *testing.T, client *fakeSES) *EmailService {
	t.Helper()
	s, err := NewEmailService(context.Background(), "us-east-1", "no-reply@yoked.app", "https://api.yoked.test/", "https://app.yoked.test", false, testLogger())
	require.NoError(t, err)
	if client != nil {
		s.client = client
	}
	return s
}

func TestEmailService_SendVerificationEmail(t *testing.T) {
	client := &fakeSES{}
	svc := newTestEmailService(t, client)

	err := svc.SendVerificationEmail(context.Background(), "lifter@example.com", "Lift <Er>", "tok+en/1")

	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "no-reply@yoked.app", aws.ToString(in.Source))
	assert.Equal(t, []string{"lifter@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Verify your email address", aws.ToString(in.Message.Subject.Data))

	text := aws.ToString(in.Message.Body.Text.Data)
	assert.Contains(t, text, "https://api.yoked.test/api/auth/verify-email?token="+url.QueryEscape("tok+en/1"))

	body := aws.ToString(in.Message.Body.Html.Data)
	assert.Contains(t, body, "Hi Lift &lt;Er&gt;,")
	assert.NotContains(t, body, "<Er>")
}

func TestEmailService_SendPasswordResetEmail_UsesFrontend(t *testing.T) {
	client := &fakeSES{}
	svc := newTestEmailService(t, client)

	require.NoError(t, svc.SendPasswordResetEmail(context.Background(), "a@b.com", "", "abc"))

	text := aws.ToString(client.inputs[0].Message.Body.Text.Data)
	assert.Contains(t, text, "https://app.yoked.test/reset-password?token=abc")
	assert.True(t, strings.HasPrefix(text, "Reset your password\n\nHi,"))
}

func TestEmailService_SendFailure(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	svc := newTestEmailService(t, client)

	err := svc.SendVerificationEmail(context.Background(), "a@b.com", "", "abc")

	assert.Error(t, err)
}

func TestEmailService_DisabledOnlyLogs(t *testing.T) {
	svc := newTestEmailService(t, nil)

	assert.NoError(t, svc.SendVerificationEmail(context.Background(), "a@b.com", "", "abc"))
}

func TestEmailService_HandleBillingEvent_Receipt(t *testing.T) {
	client := &fakeSES{}
	svc := newTestEmailService(t, client)

	err := svc.HandleBillingEvent(context.Background(), models.BillingEvent{
		Type:      models.BillingPaymentSucceeded,
		Email:     "lifter@example.com",
		PaymentID: "pay-1",
		TierName:  "Premium",
		Amount:    1999,
		Currency:  "usd",
	})

	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	text := aws.ToString(client.inputs[0].Message.Body.Text.Data)
	assert.Contains(t, text, "19.99 USD")
	assert.Contains(t, text, "Premium")
	assert.Contains(t, text, "pay-1")
}

func TestEmailService_HandleBillingEvent_NoRecipient(t *testing.T) {
	client := &fakeSES{}
	svc := newTestEmailService(t, client)

	require.NoError(t, svc.HandleBillingEvent(context.Background(), models.BillingEvent{Type: models.BillingPaymentFailed}))
	assert.Empty(t, client.inputs)
}

func TestEmailService_HandleBillingEvent_UnknownType(t *testing.T) {
	client := &fakeSES{}
	svc := newTestEmailService(t, client)

	require.NoError(t, svc.HandleBillingEvent(context.Background(), models.BillingEvent{Type: "plan.renamed", Email: "a@b.com"}))
	assert.Empty(t, client.inputs)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05 EUR", formatAmount(5, "eur"))
	assert.Equal(t, "120.00 USD", formatAmount(12000, "usd"))
}
