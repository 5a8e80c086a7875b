package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/aieffects/videobot/internal/models"
)

type ReferralRepository struct {
	db *sql.DB
}

func NewReferralRepository(db *sql.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// ErrTagTaken is returned when another user already owns the tag name.
var ErrTagTaken = errors.New("referral tag already taken")

// CreateTag inserts a tag name; the primary key enforces global uniqueness
// across all users.
func (r *ReferralRepository) CreateTag(ctx context.Context, name string, userID int64) error {
	const query = `INSERT INTO ref_tags (name, user_id) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, name, userID); err != nil {
		if isDuplicateKey(err) {
			return ErrTagTaken
		}
		return fmt.Errorf("insert ref tag: %w", err)
	}
	return nil
}

// DeleteTag removes a tag owned by userID. Returns false if the user does
// not own a tag with that name.
func (r *ReferralRepository) DeleteTag(ctx context.Context, name string, userID int64) (bool, error) {
	const query = `DELETE FROM ref_tags WHERE name = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, name, userID)
	if err != nil {
		return false, fmt.Errorf("delete ref tag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tag rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ReferralRepository) ListTags(ctx context.Context, userID int64) ([]models.RefTag, error) {
	const query = `SELECT name, user_id, created_at FROM ref_tags WHERE user_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list ref tags: %w", err)
	}
	defer rows.Close()

	var tags []models.RefTag
	for rows.Next() {
		var t models.RefTag
		if err := rows.Scan(&t.Name, &t.UserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ref tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// FindTagOwner resolves a tag name to its owner's user id; nil if unknown.
func (r *ReferralRepository) FindTagOwner(ctx context.Context, name string) (*int64, error) {
	const query = `SELECT user_id FROM ref_tags WHERE name = ?`
	var owner int64
	err := r.db.QueryRowContext(ctx, query, name).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag owner: %w", err)
	}
	return &owner, nil
}

// RecordClick appends a click event once per (triggered user, tag). MySQL
// cannot express a partial unique index over the pair without blocking
// repeat revenue rows, so the insert carries its own existence check.
func (r *ReferralRepository) RecordClick(ctx context.Context, ev models.RefEvent) error {
	const query = `
INSERT INTO ref_events (type, referrer_user_id, tag, triggered_user_id, is_new_user, date)
SELECT ?, ?, ?, ?, ?, ? FROM DUAL
WHERE NOT EXISTS (
    SELECT 1 FROM ref_events WHERE type = ? AND triggered_user_id = ? AND tag = ?
)`
	isNew := 0
	if ev.IsNewUser {
		isNew = 1
	}
	if _, err := r.db.ExecContext(ctx, query,
		models.RefEventClick, ev.ReferrerUserID, ev.Tag, ev.TriggeredUserID, isNew, ev.Date,
		models.RefEventClick, ev.TriggeredUserID, ev.Tag,
	); err != nil {
		return fmt.Errorf("record click event: %w", err)
	}
	return nil
}

// RecordRevenue appends a revenue event keyed by payment id. The unique
// index on payment_id makes the webhook and verify paths racing each other
// produce a single row.
func (r *ReferralRepository) RecordRevenue(ctx context.Context, ev models.RefEvent) error {
	const query = `
INSERT INTO ref_events (type, referrer_user_id, tag, triggered_user_id, payment_id, amount, date)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE id = id`
	if _, err := r.db.ExecContext(ctx, query,
		models.RefEventRevenue, ev.ReferrerUserID, ev.Tag, ev.TriggeredUserID, ev.PaymentID, ev.Amount, ev.Date,
	); err != nil {
		return fmt.Errorf("record revenue event: %w", err)
	}
	return nil
}

// DeleteEvents removes all events attributed to (referrer, tag). Called when
// a tag is deleted so stats do not survive re-creation.
func (r *ReferralRepository) DeleteEvents(ctx context.Context, referrerID int64, tag string) error {
	const query = `DELETE FROM ref_events WHERE referrer_user_id = ? AND tag = ?`
	if _, err := r.db.ExecContext(ctx, query, referrerID, tag); err != nil {
		return fmt.Errorf("delete ref events: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
