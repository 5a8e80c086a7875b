package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aieffects/videobot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, plan_id, credits, amount, currency, status, COALESCE(confirmation_token, ''), created_at, completed_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var p models.Payment
	var completedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.Credits, &p.Amount, &p.Currency, &p.Status, &p.ConfirmationToken, &p.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		at := completedAt.Time
		p.CompletedAt = &at
	}
	return &p, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (id, user_id, plan_id, credits, amount, currency, status, confirmation_token)
VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, payment.ID, payment.UserID, payment.PlanID, payment.Credits, payment.Amount, payment.Currency, payment.Status, payment.ConfirmationToken); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return payment, nil
}

// FindPending returns the user's pending payment for the given plan, if any.
func (r *PaymentRepository) FindPending(ctx context.Context, userID int64, planID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = ? AND plan_id = ? AND status = ? LIMIT 1`
	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, userID, planID, models.PaymentPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pending payment: %w", err)
	}
	return payment, nil
}

// CancelPendingExcept cancels every pending payment of the user on other
// plans, keeping at most one live payment intent per user.
func (r *PaymentRepository) CancelPendingExcept(ctx context.Context, userID int64, planID string, at time.Time) error {
	const query = `
UPDATE payments SET status = ?, completed_at = ?
WHERE user_id = ? AND status = ? AND plan_id <> ?`
	if _, err := r.db.ExecContext(ctx, query, models.PaymentCanceled, at, userID, models.PaymentPending, planID); err != nil {
		return fmt.Errorf("cancel pending payments: %w", err)
	}
	return nil
}

// MarkSucceeded transitions the payment into succeeded exactly once. A false
// return means another caller already did it; treat that as the processed
// case, not an error.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
UPDATE payments SET status = ?, completed_at = ?
WHERE id = ? AND status <> ?`
	res, err := r.db.ExecContext(ctx, query, models.PaymentSucceeded, at, id, models.PaymentSucceeded)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("succeeded rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus records a non-success upstream status (canceled, expired).
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error {
	const query = `UPDATE payments SET status = ?, completed_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, at, id); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}
