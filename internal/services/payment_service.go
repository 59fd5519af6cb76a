package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/yoked/internal/billing"
	"github.com/BradenHooton/yoked/internal/models"
	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
)

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) (*models.Payment, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	GetLatestForSubscription(ctx context.Context, subscriptionID string, status *models.PaymentStatus) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id string, from, to models.PaymentStatus, reason string) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, id string, from models.PaymentStatus, intentID string, renewal time.Time) (*models.Payment, error)
	ExtendRenewal(ctx context.Context, id string, renewal time.Time) error
	SetPaymentIntent(ctx context.Context, id, intentID string) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Payment, int, error)
	ListPending(ctx context.Context, platform models.PaymentPlatform, cutoff time.Time, limit int) ([]*models.Payment, error)
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)
}

// SubscriptionRepository defines the interface for user subscription data access
type SubscriptionRepository interface {
	Create(ctx context.Context, s *models.UserSubscription) (*models.UserSubscription, error)
	GetByID(ctx context.Context, id string) (*models.UserSubscription, error)
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error)
	GetCurrentForUser(ctx context.Context, userID string) (*models.UserSubscription, error)
	ListCurrentForUser(ctx context.Context, userID string) ([]*models.UserSubscription, error)
	UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
	Activate(ctx context.Context, id, stripeSubscriptionID string, start, renewal time.Time) error
}

// PaymentGateway is the payment processor as seen by the billing logic.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error)
	PaymentIntentSucceeded(ctx context.Context, paymentIntentID string) (bool, error)
	Refund(ctx context.Context, paymentIntentID string) error
	CancelSubscription(ctx context.Context, stripeSubscriptionID string) error
}

// EventPublisher emits billing events after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, event models.BillingEvent) error
}

const (
	jobBatchSize    = 100
	recoveryTimeout = 15 * time.Second
)

// PaymentConfig holds the billing settings of PaymentService.
type PaymentConfig struct {
	FrontendURL   string
	PendingWindow time.Duration
}

// PaymentService reconciles local payment and subscription state with the
// payment processor. Every status write is a compare-and-swap, so replays
// and out-of-order events cannot move a payment backwards.
type PaymentService struct {
	payments    PaymentRepository
	subs        SubscriptionRepository
	tiers       TierRepository
	users       UserRepository
	tx          Transactor
	gateway     PaymentGateway
	publisher   EventPublisher
	cfg         PaymentConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewPaymentService(
	payments PaymentRepository,
	subs SubscriptionRepository,
	tiers TierRepository,
	users UserRepository,
	tx Transactor,
	gateway PaymentGateway,
	publisher EventPublisher,
	cfg PaymentConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PaymentService {
	if cfg.PendingWindow < 30*time.Minute {
		cfg.PendingWindow = 30 * time.Minute
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &PaymentService{
		payments:    payments,
		subs:        subs,
		tiers:       tiers,
		users:       users,
		tx:          tx,
		gateway:     gateway,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// ============================================================================
// Billing events
// ============================================================================

type deferredEventsKey struct{}

type deferredEvents struct {
	events []models.BillingEvent
}

// DeferEvents holds back billing events emitted under the returned context
// until flush is called. Callers that commit a transaction after the service
// returns use it so events are only published for committed changes.
func (s *PaymentService) DeferEvents(ctx context.Context) (context.Context, func(publish bool)) {
	buf := &deferredEvents{}
	return context.WithValue(ctx, deferredEventsKey{}, buf), func(publish bool) {
		if !publish {
			return
		}
		for _, event := range buf.events {
			s.publish(context.WithoutCancel(ctx), event)
		}
	}
}

func (s *PaymentService) publish(ctx context.Context, event models.BillingEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish billing event",
			slog.String("type", string(event.Type)),
			slog.String("payment_id", event.PaymentID),
			slog.Any("error", err))
	}
}

func (s *PaymentService) emit(ctx context.Context, event models.BillingEvent) {
	if buf, ok := ctx.Value(deferredEventsKey{}).(*deferredEvents); ok {
		buf.events = append(buf.events, event)
		return
	}
	s.publish(ctx, event)
}

// billingEvent builds an event for p. The recipient is looked up best effort.
func (s *PaymentService) billingEvent(ctx context.Context, typ models.BillingEventType, p *models.Payment, tierName string) models.BillingEvent {
	event := models.BillingEvent{
		Type:       typ,
		UserID:     p.UserID,
		PaymentID:  p.ID,
		TierName:   tierName,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: s.now().UTC(),
	}
	if user, err := s.users.GetByID(ctx, p.UserID); err == nil {
		event.Email = user.Email
	}
	return event
}

// ============================================================================
// Checkout
// ============================================================================

// CreateCheckout opens a processor checkout for tierID and records the
// pending subscription and payment.
func (s *PaymentService) CreateCheckout(ctx context.Context, user *models.User, req models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	platform := req.Platform
	if platform == "" {
		platform = models.PlatformStripe
	}
	if platform != models.PlatformStripe {
		return nil, models.ErrUnsupportedPlatform
	}

	tier, err := s.tiers.GetByID(ctx, req.TierID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load tier", slog.String("tier_id", req.TierID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !tier.Purchasable() {
		return nil, models.ErrTierUnavailable
	}

	if err := s.ensureNoCurrentSubscription(ctx, user.ID); err != nil {
		return nil, err
	}

	now := s.now()
	session, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     user.ID,
		Email:      user.Email,
		Tier:       tier,
		SuccessURL: s.cfg.FrontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.FrontendURL + "/payment/cancel?session_id={CHECKOUT_SESSION_ID}",
		ExpiresAt:  now.Add(s.cfg.PendingWindow),
	})
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.Create(ctx, &models.UserSubscription{
			UserID: user.ID,
			TierID: tier.ID,
			Status: models.SubscriptionPending,
		})
		if err != nil {
			return err
		}

		payment, err = s.payments.Create(ctx, &models.Payment{
			UserID:         user.ID,
			SubscriptionID: sub.ID,
			Platform:       models.PlatformStripe,
			Status:         models.PaymentPending,
			ExternalID:     session.ID,
			Amount:         tier.Price,
			Currency:       tier.Currency,
		})
		if err != nil {
			return err
		}

		_, err = s.users.BumpProfileVersion(ctx, user.ID)
		return err
	})
	if err != nil {
		s.logger.Error("failed to record checkout",
			slog.String("user_id", user.ID),
			slog.String("session_id", session.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("checkout created",
		slog.String("user_id", user.ID),
		slog.String("payment_id", payment.ID),
		slog.String("tier", tier.Name))
	return &models.CreatePaymentResponse{
		PaymentID: payment.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

func (s *PaymentService) ensureNoCurrentSubscription(ctx context.Context, userID string) error {
	_, err := s.subs.GetCurrentForUser(ctx, userID)
	switch {
	case err == nil:
		return models.ErrAlreadySubscribed
	case errors.Is(err, models.ErrNotFound):
		return nil
	default:
		s.logger.Error("failed to load current subscription", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
}

// SubscribeFree finishes onboarding on the Free plan.
func (s *PaymentService) SubscribeFree(ctx context.Context, user *models.User) error {
	if err := s.ensureNoCurrentSubscription(ctx, user.ID); err != nil {
		return err
	}
	step := user.SetupStep.Advance(models.SetupStepCompleted)
	if err := s.users.SetPlan(ctx, user.ID, models.FreePlan, &step); err != nil {
		s.logger.Error("failed to select free plan", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// CancelCheckout abandons the owner's pending checkout. Repeating it is a
// no-op.
func (s *PaymentService) CancelCheckout(ctx context.Context, user *models.User, sessionID string) (*models.Payment, error) {
	p, err := s.payments.GetByExternalID(ctx, sessionID)
	if err != nil || p.UserID != user.ID {
		if err == nil || errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load payment", slog.String("session_id", sessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if p.Status == models.PaymentCancelled {
		return p, nil
	}
	if p.Status != models.PaymentPending {
		return nil, models.ErrInvalidTransition
	}

	var updated *models.Payment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = s.payments.UpdateStatus(ctx, p.ID, models.PaymentPending, models.PaymentCancelled, models.FailureCheckoutCancelled); err != nil {
			return err
		}
		return s.subs.UpdateStatus(ctx, p.SubscriptionID, models.SubscriptionCancelled)
	})
	if err != nil {
		return nil, s.mapErr("cancel checkout", p.ID, err)
	}
	return updated, nil
}

// ============================================================================
// Verification and state transitions
// ============================================================================

// VerifyPayment asks the processor for the authoritative state of the
// owner's payment and applies it.
func (s *PaymentService) VerifyPayment(ctx context.Context, user *models.User, req models.VerifyPaymentRequest) (*models.Payment, error) {
	var (
		p   *models.Payment
		err error
	)
	if req.PaymentID != "" {
		p, err = s.payments.GetByID(ctx, req.PaymentID)
	} else {
		p, err = s.payments.GetByExternalID(ctx, req.SessionID)
	}
	if err != nil || p.UserID != user.ID {
		if err == nil || errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load payment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if p.Platform != models.PlatformStripe {
		return nil, models.ErrUnsupportedPlatform
	}
	if p.Status == models.PaymentSucceeded || (p.Status.IsTerminal() && !p.AbandonedCheckout()) {
		return p, nil
	}

	status, err := s.gateway.GetCheckoutStatus(ctx, p.ExternalID)
	if err != nil {
		return nil, err
	}

	paid, err := s.confirmPaid(ctx, p, status)
	if err != nil {
		return nil, err
	}

	switch {
	case paid:
		return s.applySuccessWithRecovery(ctx, p.ID, status.PaymentIntentID, status.StripeSubscriptionID)
	case status.Expired && p.Status == models.PaymentPending:
		return s.failPending(ctx, p, models.FailureCheckoutExpired)
	default:
		return p, nil
	}
}

// confirmPaid reports whether the processor considers the payment paid,
// consulting the payment intent when the checkout alone is not conclusive.
func (s *PaymentService) confirmPaid(ctx context.Context, p *models.Payment, status *models.CheckoutStatus) (bool, error) {
	if status.Paid {
		return true, nil
	}
	intentID := status.PaymentIntentID
	if intentID == "" {
		intentID = p.StripePaymentIntentID
	}
	if intentID == "" {
		return false, nil
	}
	return s.gateway.PaymentIntentSucceeded(ctx, intentID)
}

// applySuccess moves a payment to succeeded and grants its tier in one
// transaction. A payment that already succeeded is returned as is.
func (s *PaymentService) applySuccess(ctx context.Context, paymentID, intentID, stripeSubID string) (*models.Payment, error) {
	var (
		result  *models.Payment
		event   *models.BillingEvent
		changed bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentSucceeded {
			result = p
			return nil
		}
		if p.Status.IsTerminal() && !p.AbandonedCheckout() {
			return models.ErrInvalidTransition
		}

		sub, err := s.subs.GetByID(ctx, p.SubscriptionID)
		if err != nil {
			return err
		}
		tier, err := s.tiers.GetByID(ctx, sub.TierID)
		if err != nil {
			return err
		}

		now := s.now()
		renewal := tier.RecurringInterval.NextRenewal(now)
		if result, err = s.payments.MarkSucceeded(ctx, p.ID, p.Status, intentID, renewal); err != nil {
			return err
		}
		if err := s.subs.Activate(ctx, sub.ID, stripeSubID, now, renewal); err != nil {
			return err
		}
		step := models.SetupStepCompleted
		if err := s.users.SetPlan(ctx, p.UserID, tier.Name, &step); err != nil {
			return err
		}

		e := s.billingEvent(ctx, models.BillingPaymentSucceeded, result, tier.Name)
		event, changed = &e, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("payment succeeded", slog.String("payment_id", result.ID), slog.String("user_id", result.UserID))
		s.auditLogger.LogBillingEvent(ctx, "payment_succeeded", result.UserID, result.ID, true)
		s.emit(ctx, *event)
	}
	return result, nil
}

// applySuccessWithRecovery retries a failed applySuccess once on a fresh
// context. The processor has already taken the money at this point, so a
// second failure is left for the reconcile job.
func (s *PaymentService) applySuccessWithRecovery(ctx context.Context, paymentID, intentID, stripeSubID string) (*models.Payment, error) {
	p, err := s.applySuccess(ctx, paymentID, intentID, stripeSubID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		return s.reload(ctx, paymentID)
	}

	s.logger.Warn("failed to record confirmed payment, retrying",
		slog.String("payment_id", paymentID), slog.Any("error", err))

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()
	if p, err = s.applySuccess(rctx, paymentID, intentID, stripeSubID); err == nil {
		return p, nil
	}

	s.logger.Error("payment confirmed but not recorded",
		slog.String("payment_id", paymentID), slog.Any("error", err))
	return nil, models.ErrInternalServer
}

func (s *PaymentService) reload(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, s.mapErr("reload payment", paymentID, err)
	}
	return p, nil
}

// failPending moves a pending payment to failed and expires its
// subscription.
func (s *PaymentService) failPending(ctx context.Context, p *models.Payment, reason string) (*models.Payment, error) {
	var updated *models.Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = s.payments.UpdateStatus(ctx, p.ID, models.PaymentPending, models.PaymentFailed, reason); err != nil {
			return err
		}
		return s.subs.UpdateStatus(ctx, p.SubscriptionID, models.SubscriptionExpired)
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return s.reload(ctx, p.ID)
		}
		return nil, s.mapErr("fail payment", p.ID, err)
	}

	s.logger.Info("payment failed", slog.String("payment_id", p.ID), slog.String("reason", reason))
	s.auditLogger.LogBillingEvent(ctx, "payment_failed", p.UserID, p.ID, false)
	s.emit(ctx, s.billingEvent(ctx, models.BillingPaymentFailed, updated, ""))
	return updated, nil
}

// ============================================================================
// Refunds and cancellation
// ============================================================================

// RefundPayment refunds a succeeded payment of userID in full, cancels the
// processor subscription and drops the user to the Free plan.
func (s *PaymentService) RefundPayment(ctx context.Context, actorID string, req models.RefundRequest) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil || p.UserID != req.UserID {
		if err == nil || errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load payment", slog.String("payment_id", req.PaymentID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if p.Platform != models.PlatformStripe {
		return nil, models.ErrUnsupportedPlatform
	}
	if p.Status != models.PaymentSucceeded {
		return nil, models.ErrInvalidTransition
	}

	intentID, err := s.resolvePaymentIntent(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.Refund(ctx, intentID); err != nil {
		s.auditLogger.LogBillingEvent(ctx, "refund_failed", p.UserID, p.ID, false)
		return nil, err
	}

	sub, err := s.subs.GetByID(ctx, p.SubscriptionID)
	if err != nil {
		s.logger.Error("failed to load subscription of refunded payment", slog.String("payment_id", p.ID), slog.Any("error", err))
	} else if sub.StripeSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			s.logger.Error("failed to cancel subscription of refunded payment",
				slog.String("payment_id", p.ID), slog.Any("error", err))
		}
	}

	record := func(ctx context.Context) (*models.Payment, error) {
		var updated *models.Payment
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			if updated, err = s.payments.UpdateStatus(ctx, p.ID, models.PaymentSucceeded, models.PaymentRefunded, ""); err != nil {
				return err
			}
			if err := s.subs.UpdateStatus(ctx, p.SubscriptionID, models.SubscriptionCancelled); err != nil {
				return err
			}
			return s.users.SetPlan(ctx, p.UserID, models.FreePlan, nil)
		})
		return updated, err
	}

	updated, err := record(ctx)
	if err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
		defer cancel()
		updated, err = record(rctx)
	}
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, models.ErrInvalidTransition
		}
		s.logger.Error("refund issued but not recorded", slog.String("payment_id", p.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("payment refunded", slog.String("payment_id", p.ID), slog.String("actor_id", actorID))
	s.auditLogger.LogAdminAction(ctx, "payment_refunded", actorID, p.UserID, map[string]string{"payment_id": p.ID})
	s.emit(ctx, s.billingEvent(ctx, models.BillingPaymentRefunded, updated, ""))
	return updated, nil
}

func (s *PaymentService) resolvePaymentIntent(ctx context.Context, p *models.Payment) (string, error) {
	if p.StripePaymentIntentID != "" {
		return p.StripePaymentIntentID, nil
	}

	status, err := s.gateway.GetCheckoutStatus(ctx, p.ExternalID)
	if err != nil {
		return "", err
	}
	if status.PaymentIntentID == "" {
		return "", fmt.Errorf("%w: no payment intent for payment %s", models.ErrPaymentProvider, p.ID)
	}
	if err := s.payments.SetPaymentIntent(ctx, p.ID, status.PaymentIntentID); err != nil {
		s.logger.Warn("failed to store payment intent", slog.String("payment_id", p.ID), slog.Any("error", err))
	}
	return status.PaymentIntentID, nil
}

// CancelSubscription ends the user's current subscription after confirming
// their password.
func (s *PaymentService) CancelSubscription(ctx context.Context, user *models.User, password string) error {
	if !pkgauth.VerifyPassword(user.PasswordHash, password) {
		return models.ErrInvalidCredential
	}

	sub, err := s.subs.GetCurrentForUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load current subscription", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return s.cancelSubscription(ctx, sub, true)
}

// CancelUserSubscriptions cancels every current subscription of userID.
func (s *PaymentService) CancelUserSubscriptions(ctx context.Context, userID string) error {
	subs, err := s.subs.ListCurrentForUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list subscriptions", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	for _, sub := range subs {
		if err := s.cancelSubscription(ctx, sub, true); err != nil {
			return err
		}
	}
	return nil
}

// cancelSubscription cancels sub, at the processor too when remote is set,
// cancels its latest succeeded payment and returns the user to Free.
func (s *PaymentService) cancelSubscription(ctx context.Context, sub *models.UserSubscription, remote bool) error {
	if remote && sub.StripeSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return err
		}
	}

	var cancelled *models.Payment
	tierName := ""
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.subs.UpdateStatus(ctx, sub.ID, models.SubscriptionCancelled); err != nil {
			return err
		}

		succeeded := models.PaymentSucceeded
		latest, err := s.payments.GetLatestForSubscription(ctx, sub.ID, &succeeded)
		switch {
		case err == nil:
			if cancelled, err = s.payments.UpdateStatus(ctx, latest.ID, models.PaymentSucceeded, models.PaymentCancelled, "subscription_cancelled"); err != nil {
				return err
			}
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		if tier, err := s.tiers.GetByID(ctx, sub.TierID); err == nil {
			tierName = tier.Name
		}
		return s.users.SetPlan(ctx, sub.UserID, models.FreePlan, nil)
	})
	if err != nil {
		return s.mapErr("cancel subscription", sub.ID, err)
	}

	s.logger.Info("subscription cancelled", slog.String("subscription_id", sub.ID), slog.String("user_id", sub.UserID))
	s.auditLogger.LogBillingEvent(ctx, "subscription_cancelled", sub.UserID, paymentID(cancelled), true)

	p := cancelled
	if p == nil {
		p = &models.Payment{UserID: sub.UserID}
	}
	s.emit(ctx, s.billingEvent(ctx, models.BillingSubscriptionCancelled, p, tierName))
	return nil
}

func paymentID(p *models.Payment) string {
	if p == nil {
		return ""
	}
	return p.ID
}

// CurrentSubscription returns the user's active or past-due subscription
// with its tier.
func (s *PaymentService) CurrentSubscription(ctx context.Context, userID string) (*models.SubscriptionDetails, error) {
	sub, err := s.subs.GetCurrentForUser(ctx, userID)
	if err != nil {
		return nil, s.mapErr("load current subscription", userID, err)
	}
	tier, err := s.tiers.GetByID(ctx, sub.TierID)
	if err != nil {
		return nil, s.mapErr("load subscription tier", sub.TierID, err)
	}
	return &models.SubscriptionDetails{Subscription: sub, Tier: tier}, nil
}

// ============================================================================
// History
// ============================================================================

func (s *PaymentService) History(ctx context.Context, userID string, page, pageSize int) (*models.PaymentHistoryResponse, error) {
	payments, total, err := s.payments.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, s.mapErr("list payments", userID, err)
	}
	return &models.PaymentHistoryResponse{Payments: payments, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *PaymentService) AllHistory(ctx context.Context, page, pageSize int) (*models.PaymentHistoryResponse, error) {
	payments, total, err := s.payments.ListAll(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, s.mapErr("list all payments", "", err)
	}
	return &models.PaymentHistoryResponse{Payments: payments, Total: total, Page: page, PageSize: pageSize}, nil
}

// ============================================================================
// Webhook handlers
// ============================================================================

// HandleCheckoutCompleted grants the tier of a paid checkout.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, ev *models.WebhookEvent) error {
	if ev.PaymentStatus != "paid" {
		s.logger.Info("checkout completed without payment", slog.String("session_id", ev.CheckoutSessionID))
		return nil
	}
	p, err := s.payments.GetByExternalID(ctx, ev.CheckoutSessionID)
	if err != nil {
		return s.ignoreUnknown("checkout session", ev.CheckoutSessionID, err)
	}

	if p.AbandonedCheckout() {
		s.logger.Warn("paid checkout arrived after the user cancelled it",
			slog.String("payment_id", p.ID), slog.String("user_id", p.UserID))
	}
	_, err = s.applySuccess(ctx, p.ID, ev.PaymentIntentID, ev.StripeSubscriptionID)
	if errors.Is(err, models.ErrInvalidTransition) {
		// Money was taken for a payment that can no longer succeed.
		s.logger.Error("paid checkout could not be applied",
			slog.String("payment_id", p.ID), slog.String("user_id", p.UserID),
			slog.String("status", string(p.Status)), slog.String("payment_intent_id", ev.PaymentIntentID))
		s.auditLogger.LogBillingEvent(ctx, "paid_checkout_unapplied", p.UserID, p.ID, false)
		return nil
	}
	return err
}

// HandleCheckoutExpired fails the pending payment of an expired checkout.
func (s *PaymentService) HandleCheckoutExpired(ctx context.Context, ev *models.WebhookEvent) error {
	p, err := s.payments.GetByExternalID(ctx, ev.CheckoutSessionID)
	if err != nil {
		return s.ignoreUnknown("checkout session", ev.CheckoutSessionID, err)
	}
	if p.Status != models.PaymentPending {
		return nil
	}
	_, err = s.failPending(ctx, p, models.FailureCheckoutExpired)
	return err
}

// HandleInvoicePaid records a paid invoice against the subscription's latest
// payment: a pending or failed payment succeeds, a succeeded one renews.
func (s *PaymentService) HandleInvoicePaid(ctx context.Context, ev *models.WebhookEvent) error {
	sub, err := s.subs.GetByStripeID(ctx, ev.StripeSubscriptionID)
	if err != nil {
		return s.ignoreUnknown("subscription", ev.StripeSubscriptionID, err)
	}
	latest, err := s.payments.GetLatestForSubscription(ctx, sub.ID, nil)
	if err != nil {
		return s.ignoreUnknown("payment for subscription", sub.ID, err)
	}

	switch latest.Status {
	case models.PaymentPending, models.PaymentFailed:
		_, err := s.applySuccess(ctx, latest.ID, ev.PaymentIntentID, ev.StripeSubscriptionID)
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil
		}
		return err
	case models.PaymentSucceeded:
		tier, err := s.tiers.GetByID(ctx, sub.TierID)
		if err != nil {
			return err
		}
		now := s.now()
		renewal := tier.RecurringInterval.NextRenewal(now)
		if ev.PeriodEnd != nil && ev.PeriodEnd.After(now) {
			renewal = *ev.PeriodEnd
		}
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.payments.ExtendRenewal(ctx, latest.ID, renewal); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
				return err
			}
			return s.subs.Activate(ctx, sub.ID, "", now, renewal)
		})
	default:
		return nil
	}
}

// HandleInvoiceFailed fails the latest payment and marks the subscription
// past due.
func (s *PaymentService) HandleInvoiceFailed(ctx context.Context, ev *models.WebhookEvent) error {
	sub, err := s.subs.GetByStripeID(ctx, ev.StripeSubscriptionID)
	if err != nil {
		return s.ignoreUnknown("subscription", ev.StripeSubscriptionID, err)
	}
	latest, err := s.payments.GetLatestForSubscription(ctx, sub.ID, nil)
	if err != nil {
		return s.ignoreUnknown("payment for subscription", sub.ID, err)
	}
	if latest.Status != models.PaymentPending && latest.Status != models.PaymentSucceeded {
		return nil
	}

	var updated *models.Payment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = s.payments.UpdateStatus(ctx, latest.ID, latest.Status, models.PaymentFailed, models.FailureInvoiceFailed); err != nil {
			return err
		}
		return s.subs.UpdateStatus(ctx, sub.ID, models.SubscriptionPastDue)
	})
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	s.auditLogger.LogBillingEvent(ctx, "invoice_failed", updated.UserID, updated.ID, false)
	s.emit(ctx, s.billingEvent(ctx, models.BillingPaymentFailed, updated, ""))
	return nil
}

// HandleSubscriptionUpdated mirrors the processor's subscription status.
func (s *PaymentService) HandleSubscriptionUpdated(ctx context.Context, ev *models.WebhookEvent) error {
	sub, err := s.subs.GetByStripeID(ctx, ev.StripeSubscriptionID)
	if err != nil {
		return s.ignoreUnknown("subscription", ev.StripeSubscriptionID, err)
	}

	switch ev.SubscriptionStatus {
	case "active", "trialing":
		if sub.Status == models.SubscriptionPastDue {
			return s.subs.UpdateStatus(ctx, sub.ID, models.SubscriptionActive)
		}
	case "past_due", "unpaid":
		if sub.Status == models.SubscriptionActive {
			return s.subs.UpdateStatus(ctx, sub.ID, models.SubscriptionPastDue)
		}
	case "canceled":
		return s.HandleSubscriptionDeleted(ctx, ev)
	default:
		s.logger.Debug("ignoring subscription status",
			slog.String("stripe_subscription_id", ev.StripeSubscriptionID),
			slog.String("status", ev.SubscriptionStatus))
	}
	return nil
}

// HandleSubscriptionDeleted cancels the local subscription once the
// processor has ended it.
func (s *PaymentService) HandleSubscriptionDeleted(ctx context.Context, ev *models.WebhookEvent) error {
	sub, err := s.subs.GetByStripeID(ctx, ev.StripeSubscriptionID)
	if err != nil {
		return s.ignoreUnknown("subscription", ev.StripeSubscriptionID, err)
	}
	if sub.Status == models.SubscriptionCancelled || sub.Status == models.SubscriptionExpired {
		return nil
	}
	return s.cancelSubscription(ctx, sub, false)
}

// ignoreUnknown swallows not-found lookups for processor objects this
// service did not create.
func (s *PaymentService) ignoreUnknown(kind, id string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Info("ignoring event for unknown "+kind, slog.String("id", id))
		return nil
	}
	return err
}

// ============================================================================
// Scheduled jobs
// ============================================================================

// ExpirePending fails pending payments older than the checkout window.
func (s *PaymentService) ExpirePending(ctx context.Context) (int, error) {
	stale, err := s.payments.ListPending(ctx, "", s.now().Add(-s.cfg.PendingWindow), jobBatchSize)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range stale {
		updated, err := s.failPending(ctx, p, models.FailurePendingTimeout)
		if err != nil {
			s.logger.Error("failed to expire pending payment", slog.String("payment_id", p.ID), slog.Any("error", err))
			continue
		}
		if updated.Status == models.PaymentFailed {
			n++
		}
	}
	return n, nil
}

// LapseExpired fails succeeded payments whose renewal date has passed and
// returns their users to the Free plan.
func (s *PaymentService) LapseExpired(ctx context.Context) (int, error) {
	lapsed, err := s.payments.ListLapsed(ctx, s.now(), jobBatchSize)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range lapsed {
		var updated *models.Payment
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			if updated, err = s.payments.UpdateStatus(ctx, p.ID, models.PaymentSucceeded, models.PaymentFailed, models.FailureRenewalLapsed); err != nil {
				return err
			}
			if err := s.subs.UpdateStatus(ctx, p.SubscriptionID, models.SubscriptionExpired); err != nil {
				return err
			}
			return s.users.SetPlan(ctx, p.UserID, models.FreePlan, nil)
		})
		if err != nil {
			if !errors.Is(err, models.ErrInvalidTransition) {
				s.logger.Error("failed to lapse subscription", slog.String("payment_id", p.ID), slog.Any("error", err))
			}
			continue
		}
		n++
		s.auditLogger.LogBillingEvent(ctx, "subscription_lapsed", p.UserID, p.ID, false)
		s.emit(ctx, s.billingEvent(ctx, models.BillingPaymentFailed, updated, ""))
	}
	return n, nil
}

// ReconcilePending re-polls the processor for pending Stripe payments and
// applies whatever it reports.
func (s *PaymentService) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := s.payments.ListPending(ctx, models.PlatformStripe, s.now(), jobBatchSize)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		status, err := s.gateway.GetCheckoutStatus(ctx, p.ExternalID)
		if err != nil {
			s.logger.Warn("failed to poll checkout", slog.String("payment_id", p.ID), slog.Any("error", err))
			continue
		}
		paid, err := s.confirmPaid(ctx, p, status)
		if err != nil {
			s.logger.Warn("failed to poll payment intent", slog.String("payment_id", p.ID), slog.Any("error", err))
			continue
		}

		switch {
		case paid:
			if _, err := s.applySuccess(ctx, p.ID, status.PaymentIntentID, status.StripeSubscriptionID); err != nil {
				s.logger.Error("failed to reconcile paid payment", slog.String("payment_id", p.ID), slog.Any("error", err))
				continue
			}
			n++
		case status.Expired:
			if _, err := s.failPending(ctx, p, models.FailureCheckoutExpired); err != nil {
				s.logger.Error("failed to reconcile expired payment", slog.String("payment_id", p.ID), slog.Any("error", err))
				continue
			}
			n++
		}
	}
	return n, nil
}

func (s *PaymentService) mapErr(op, ref string, err error) error {
	for _, sentinel := range []error{
		models.ErrNotFound, models.ErrInvalidTransition, models.ErrConflict, models.ErrPaymentProvider,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	s.logger.Error("failed to "+op, slog.String("ref", ref), slog.Any("error", err))
	return models.ErrInternalServer
}
