package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BradenHooton/yoked/internal/models"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService sends transactional email through AWS SES. With sending
// disabled it only logs what it would have sent.
type EmailService struct {
	client      sesAPI
	fromAddress string
	baseURL     string
	frontendURL string
	logger      *slog.Logger
}

// NewEmailService creates an SES backed sender. A nil error with enabled set
// to false yields a logging-only sender for local development.
func NewEmailService(ctx context.Context, region, fromAddress, baseURL, frontendURL string, enabled bool, logger *slog.Logger) (*EmailService, error) {
	s := &EmailService{
		fromAddress: fromAddress,
		baseURL:     strings.TrimRight(baseURL, "/"),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
	if !enabled {
		return s, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s.client = ses.NewFromConfig(cfg)
	return s, nil
}

type emailMessage struct {
	to      string
	subject string
	heading string
	lines   []string
	link    string
	action  string
}

func (m emailMessage) htmlBody() string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8"></head>`)
	b.WriteString(`<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">`)
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(m.heading))
	for _, line := range m.lines {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(line))
	}
	if m.link != "" {
		fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, html.EscapeString(m.link), html.EscapeString(m.action))
		fmt.Fprintf(&b, "<p>Or paste this link into your browser:<br><code>%s</code></p>", html.EscapeString(m.link))
	}
	b.WriteString(`<p style="color: #666; font-size: 12px;">This is an automated message from Yoked. Please do not reply.</p>`)
	b.WriteString("</body></html>")
	return b.String()
}

func (m emailMessage) textBody() string {
	var b strings.Builder
	b.WriteString(m.heading + "\n\n")
	for _, line := range m.lines {
		b.WriteString(line + "\n\n")
	}
	if m.link != "" {
		fmt.Fprintf(&b, "%s: %s\n\n", m.action, m.link)
	}
	b.WriteString("This is an automated message from Yoked. Please do not reply.\n")
	return b.String()
}

func (s *EmailService) send(ctx context.Context, m emailMessage) error {
	if s.client == nil {
		s.logger.Info("email sending disabled",
			slog.String("to", pkglogger.SanitizedEmail(m.to)),
			slog.String("subject", m.subject))
		return nil
	}

	result, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{m.to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(m.subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(m.htmlBody()), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(m.textBody()), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("to", pkglogger.SanitizedEmail(m.to)),
			slog.String("subject", m.subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", pkglogger.SanitizedEmail(m.to)),
		slog.String("subject", m.subject),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func greeting(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return "Hi " + name + ","
	}
	return "Hi,"
}

func (s *EmailService) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	link := fmt.Sprintf("%s/api/auth/verify-email?token=%s", s.baseURL, url.QueryEscape(token))
	return s.send(ctx, emailMessage{
		to:      email,
		subject: "Verify your email address",
		heading: "Verify your email address",
		lines: []string{
			greeting(name),
			"Thanks for joining Yoked. Confirm your email address to finish setting up your account.",
			"If you did not create this account you can ignore this email.",
		},
		link:   link,
		action: "Verify email address",
	})
}

func (s *EmailService) SendPasswordResetEmail(ctx context.Context, email, name, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, url.QueryEscape(token))
	return s.send(ctx, emailMessage{
		to:      email,
		subject: "Reset your password",
		heading: "Reset your password",
		lines: []string{
			greeting(name),
			"We received a request to reset your Yoked password. The link below can be used once.",
			"If you did not ask for this you can ignore this email and your password will stay the same.",
		},
		link:   link,
		action: "Choose a new password",
	})
}

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}

// billingMessage returns the notice for a billing event, or false for event
// types that do not produce email.
func billingMessage(event models.BillingEvent) (emailMessage, bool) {
	m := emailMessage{to: event.Email}
	switch event.Type {
	case models.BillingPaymentSucceeded:
		m.subject = "Your Yoked receipt"
		m.heading = "Payment received"
		m.lines = []string{
			fmt.Sprintf("Your payment of %s for the %s plan was successful.", formatAmount(event.Amount, event.Currency), event.TierName),
			"Payment reference: " + event.PaymentID,
		}
	case models.BillingPaymentFailed:
		m.subject = "Your Yoked payment did not go through"
		m.heading = "Payment failed"
		m.lines = []string{
			fmt.Sprintf("We could not complete the payment for your %s plan.", event.TierName),
			"Please update your payment method to keep your subscription.",
		}
	case models.BillingPaymentRefunded:
		m.subject = "Your Yoked refund"
		m.heading = "Payment refunded"
		m.lines = []string{
			fmt.Sprintf("A refund of %s has been issued. Your account is now on the Free plan.", formatAmount(event.Amount, event.Currency)),
			"Payment reference: " + event.PaymentID,
		}
	case models.BillingSubscriptionCancelled:
		m.subject = "Your Yoked subscription was cancelled"
		m.heading = "Subscription cancelled"
		m.lines = []string{
			fmt.Sprintf("Your %s subscription has been cancelled and your account is now on the Free plan.", event.TierName),
		}
	default:
		return emailMessage{}, false
	}
	return m, true
}

// HandleBillingEvent sends the customer notice for a billing event taken
// off the queue.
func (s *EmailService) HandleBillingEvent(ctx context.Context, event models.BillingEvent) error {
	if event.Email == "" {
		s.logger.Warn("billing event without recipient", slog.String("type", string(event.Type)), slog.String("user_id", event.UserID))
		return nil
	}
	m, ok := billingMessage(event)
	if !ok {
		s.logger.Debug("no notice for billing event", slog.String("type", string(event.Type)))
		return nil
	}
	return s.send(ctx, m)
}
