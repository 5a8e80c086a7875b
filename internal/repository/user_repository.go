package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aieffects/videobot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(language_code, ''), is_premium, credits, credits_expire_at, expiry_warned, selected_model, referred_by_user_id, COALESCE(referred_by_tag, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var premium, warned int
	var expireAt sql.NullTime
	var referrer sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode, &premium, &u.Credits, &expireAt, &warned, &u.SelectedModel, &referrer, &u.ReferredByTag, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.IsPremium = premium != 0
	u.ExpiryWarned = warned != 0
	if expireAt.Valid {
		t := expireAt.Time
		u.CreditsExpireAt = &t
	}
	if referrer.Valid {
		id := referrer.Int64
		u.ReferredByUserID = &id
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
INSERT INTO users (id, username, first_name, last_name, language_code, is_premium, selected_model)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	premium := 0
	if user.IsPremium {
		premium = 1
	}
	if user.SelectedModel == "" {
		user.SelectedModel = models.ModelHailuo
	}
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode, premium, user.SelectedModel); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName, lastName string, isPremium bool) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), last_name = NULLIF(?, ''), is_premium = ?, updated_at = NOW()
WHERE id = ?`
	premium := 0
	if isPremium {
		premium = 1
	}
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, premium, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure returns the user, creating it on first contact. The second return
// value reports whether a new record was created.
func (r *UserRepository) Ensure(ctx context.Context, user *models.User) (*models.User, bool, error) {
	existing, err := r.FindByID(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Username != user.Username || existing.FirstName != user.FirstName || existing.LastName != user.LastName || existing.IsPremium != user.IsPremium {
			if err := r.UpdateProfile(ctx, user.ID, user.Username, user.FirstName, user.LastName, user.IsPremium); err != nil {
				return nil, false, err
			}
			existing.Username = user.Username
			existing.FirstName = user.FirstName
			existing.LastName = user.LastName
			existing.IsPremium = user.IsPremium
		}
		return existing, false, nil
	}
	if err := r.Create(ctx, user); err != nil {
		return nil, false, err
	}
	created, err := r.FindByID(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// DebitCredits decrements the balance by amount only if the balance covers
// it. A false return means the floor check failed and nothing changed.
func (r *UserRepository) DebitCredits(ctx context.Context, userID int64, amount int) (bool, error) {
	const query = `
UPDATE users SET credits = credits - ?, updated_at = NOW()
WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	return affected > 0, nil
}

// CreditCredits increments the balance unconditionally (refunds).
func (r *UserRepository) CreditCredits(ctx context.Context, userID int64, amount int) error {
	const query = `UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("credit credits: %w", err)
	}
	return nil
}

// CreditWithExpiry increments the balance and restarts the expiry clock,
// clearing the warned flag. Used when a payment succeeds.
func (r *UserRepository) CreditWithExpiry(ctx context.Context, userID int64, amount int, expireAt time.Time) error {
	const query = `
UPDATE users SET credits = credits + ?, credits_expire_at = ?, expiry_warned = 0, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, expireAt, userID); err != nil {
		return fmt.Errorf("credit with expiry: %w", err)
	}
	return nil
}

func (r *UserRepository) SetSelectedModel(ctx context.Context, userID int64, model models.ModelType) error {
	const query = `UPDATE users SET selected_model = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, model, userID); err != nil {
		return fmt.Errorf("set selected model: %w", err)
	}
	return nil
}

// SetReferrer attributes the user to a referrer once; later calls are no-ops.
func (r *UserRepository) SetReferrer(ctx context.Context, userID, referrerID int64, tag string) error {
	const query = `
UPDATE users SET referred_by_user_id = ?, referred_by_tag = ?, updated_at = NOW()
WHERE id = ? AND referred_by_user_id IS NULL`
	if _, err := r.db.ExecContext(ctx, query, referrerID, tag, userID); err != nil {
		return fmt.Errorf("set referrer: %w", err)
	}
	return nil
}

// ListExpiring returns users with positive credits expiring in (now, cutoff]
// that have not been warned yet.
func (r *UserRepository) ListExpiring(ctx context.Context, now, cutoff time.Time) ([]models.User, error) {
	query := `
SELECT ` + userColumns + ` FROM users
WHERE credits > 0 AND credits_expire_at IS NOT NULL AND credits_expire_at > ? AND credits_expire_at <= ? AND expiry_warned = 0`
	return r.listUsers(ctx, query, now, cutoff)
}

// ListExpired returns users with positive credits whose expiry has passed.
func (r *UserRepository) ListExpired(ctx context.Context, now time.Time) ([]models.User, error) {
	query := `
SELECT ` + userColumns + ` FROM users
WHERE credits > 0 AND credits_expire_at IS NOT NULL AND credits_expire_at <= ?`
	return r.listUsers(ctx, query, now)
}

func (r *UserRepository) listUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepository) MarkExpiryWarned(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET expiry_warned = 1, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark expiry warned: %w", err)
	}
	return nil
}

// ExpireCredits zeroes the balance and clears the expiry state.
func (r *UserRepository) ExpireCredits(ctx context.Context, userID int64) error {
	const query = `
UPDATE users SET credits = 0, credits_expire_at = NULL, expiry_warned = 0, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("expire credits: %w", err)
	}
	return nil
}
