package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/yookassa"
)

// creditLifetime is how long purchased credits stay valid.
const creditLifetime = 30 * 24 * time.Hour

// Plans is the fixed catalog of credit packages.
var Plans = map[string]models.Plan{
	"starter": {ID: "starter", Name: "Старт", Credits: 1000, Amount: "790.00", Currency: "RUB"},
	"creator": {ID: "creator", Name: "Креатор", Credits: 10000, Amount: "4900.00", Currency: "RUB"},
	"pro":     {ID: "pro", Name: "Про", Credits: 105000, Amount: "45900.00", Currency: "RUB"},
}

type PaymentStore interface {
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindPending(ctx context.Context, userID int64, planID string) (*models.Payment, error)
	CancelPendingExcept(ctx context.Context, userID int64, planID string, at time.Time) error
	MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error
}

// PaymentProvider is the upstream payment gateway.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, amount, currency, description string, metadata map[string]string) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error)
}

// BillingUserStore is the slice of the user repository the payment ledger
// needs.
type BillingUserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	CreditWithExpiry(ctx context.Context, userID int64, amount int, expireAt time.Time) error
}

type RevenueStore interface {
	RecordRevenue(ctx context.Context, ev models.RefEvent) error
}

type PaymentNotifier interface {
	NotifyPaymentSucceeded(ctx context.Context, userID int64, credits int)
}

type PaymentService struct {
	payments  PaymentStore
	users     BillingUserStore
	referrals RevenueStore
	provider  PaymentProvider
	notifier  PaymentNotifier
	log       *slog.Logger
	now       func() time.Time
}

func NewPaymentService(payments PaymentStore, users BillingUserStore, referrals RevenueStore, provider PaymentProvider, notifier PaymentNotifier, log *slog.Logger) *PaymentService {
	return &PaymentService{
		payments:  payments,
		users:     users,
		referrals: referrals,
		provider:  provider,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// CreateOrReuse returns a live payment for the plan. A pending payment on the
// same plan is reused if the upstream still shows it pending, so double-taps
// on the buy button do not pile up payment intents; pendings on other plans
// are canceled first.
func (s *PaymentService) CreateOrReuse(ctx context.Context, userID int64, planID string) (*models.Payment, error) {
	plan, ok := Plans[planID]
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planID)
	}

	if err := s.payments.CancelPendingExcept(ctx, userID, planID, s.now()); err != nil {
		return nil, err
	}

	existing, err := s.payments.FindPending(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		upstream, err := s.provider.GetPayment(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("check pending payment: %w", err)
		}
		switch upstream.Status {
		case string(models.PaymentPending), string(models.PaymentWaitingForCapture):
			return existing, nil
		case string(models.PaymentSucceeded):
			// Paid but the webhook has not landed yet; settle it and fall
			// through to a fresh payment.
			if err := s.settle(ctx, existing); err != nil {
				return nil, err
			}
		default:
			if err := s.payments.UpdateStatus(ctx, existing.ID, models.PaymentCanceled, s.now()); err != nil {
				return nil, err
			}
		}
	}

	upstream, err := s.provider.CreatePayment(ctx, plan.Amount, plan.Currency, fmt.Sprintf("%s: %d credits", plan.Name, plan.Credits), map[string]string{
		"user_id": strconv.FormatInt(userID, 10),
		"plan_id": plan.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	payment := &models.Payment{
		ID:                upstream.ID,
		UserID:            userID,
		PlanID:            plan.ID,
		Credits:           plan.Credits,
		Amount:            plan.Amount,
		Currency:          plan.Currency,
		Status:            models.PaymentPending,
		ConfirmationToken: upstream.Confirmation.ConfirmationToken,
		CreatedAt:         s.now(),
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment created", "payment_id", payment.ID, "user_id", userID, "plan", plan.ID)
	return payment, nil
}

// Reconcile re-checks a payment against the upstream and applies the outcome.
// Both the webhook and the client verify endpoint funnel through here; the
// terminal-transition gate in the store makes concurrent calls credit the
// user exactly once.
func (s *PaymentService) Reconcile(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.log.Warn("reconcile for unknown payment", "payment_id", paymentID)
		return nil, nil
	}
	if payment.Status == models.PaymentSucceeded {
		return payment, nil
	}

	upstream, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	switch upstream.Status {
	case string(models.PaymentSucceeded):
		if err := s.settle(ctx, payment); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentSucceeded
	case string(models.PaymentCanceled):
		if err := s.payments.UpdateStatus(ctx, paymentID, models.PaymentCanceled, s.now()); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentCanceled
	}
	return payment, nil
}

// settle credits the user for a succeeded payment. The MarkSucceeded gate is
// the idempotence point: only the caller that wins the transition credits and
// records revenue.
func (s *PaymentService) settle(ctx context.Context, payment *models.Payment) error {
	won, err := s.payments.MarkSucceeded(ctx, payment.ID, s.now())
	if err != nil {
		return err
	}
	if !won {
		s.log.Info("payment already settled", "payment_id", payment.ID)
		return nil
	}

	if err := s.users.CreditWithExpiry(ctx, payment.UserID, payment.Credits, s.now().Add(creditLifetime)); err != nil {
		return fmt.Errorf("credit user: %w", err)
	}

	s.recordRevenue(ctx, payment)
	s.notifier.NotifyPaymentSucceeded(ctx, payment.UserID, payment.Credits)
	s.log.Info("payment settled", "payment_id", payment.ID, "user_id", payment.UserID, "credits", payment.Credits)
	return nil
}

// recordRevenue emits exactly one revenue event per payment. Organic
// payments (no referrer on the user) still produce an event, with the
// referrer fields left empty.
func (s *PaymentService) recordRevenue(ctx context.Context, payment *models.Payment) {
	var referrer *int64
	var tag string
	user, err := s.users.FindByID(ctx, payment.UserID)
	if err != nil {
		s.log.Warn("revenue attribution lookup failed", "payment_id", payment.ID, "error", err)
	} else if user != nil {
		referrer = user.ReferredByUserID
		tag = user.ReferredByTag
	}

	amount := 0
	if v, err := strconv.ParseFloat(payment.Amount, 64); err == nil {
		amount = int(v)
	}
	ev := models.RefEvent{
		Type:            models.RefEventRevenue,
		ReferrerUserID:  referrer,
		Tag:             tag,
		TriggeredUserID: payment.UserID,
		PaymentID:       payment.ID,
		Amount:          amount,
		Date:            s.now().Format("2006-01-02"),
	}
	if err := s.referrals.RecordRevenue(ctx, ev); err != nil {
		s.log.Error("record revenue event", "payment_id", payment.ID, "error", err)
	}
}
