package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aieffects/videobot/internal/models"
)

const (
	expirySweepInterval = 6 * time.Hour
	expiryWarnLead      = 3 * 24 * time.Hour
)

type ExpiryUserStore interface {
	ListExpiring(ctx context.Context, now, cutoff time.Time) ([]models.User, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.User, error)
	MarkExpiryWarned(ctx context.Context, userID int64) error
	ExpireCredits(ctx context.Context, userID int64) error
}

type ExpiryNotifier interface {
	NotifyExpiryWarning(ctx context.Context, userID int64, credits int, expireAt time.Time)
	NotifyCreditsExpired(ctx context.Context, userID int64, credits int)
}

// ExpiryService sweeps credit expiry: users inside the warning lead get one
// heads-up message, users past their expiry lose the balance.
type ExpiryService struct {
	users    ExpiryUserStore
	notifier ExpiryNotifier
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewExpiryService(users ExpiryUserStore, notifier ExpiryNotifier, log *slog.Logger) *ExpiryService {
	return &ExpiryService{
		users:    users,
		notifier: notifier,
		log:      log,
		interval: expirySweepInterval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is canceled. One sweep
// happens immediately on startup.
func (s *ExpiryService) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs the warning pass and the expiry pass once.
func (s *ExpiryService) Sweep(ctx context.Context) {
	now := s.now()

	expiring, err := s.users.ListExpiring(ctx, now, now.Add(expiryWarnLead))
	if err != nil {
		s.log.Error("list expiring users", "error", err)
	}
	for _, u := range expiring {
		s.notifier.NotifyExpiryWarning(ctx, u.ID, u.Credits, *u.CreditsExpireAt)
		if err := s.users.MarkExpiryWarned(ctx, u.ID); err != nil {
			s.log.Error("mark expiry warned", "user_id", u.ID, "error", err)
		}
	}

	expired, err := s.users.ListExpired(ctx, now)
	if err != nil {
		s.log.Error("list expired users", "error", err)
		return
	}
	for _, u := range expired {
		if err := s.users.ExpireCredits(ctx, u.ID); err != nil {
			s.log.Error("expire credits", "user_id", u.ID, "error", err)
			continue
		}
		s.notifier.NotifyCreditsExpired(ctx, u.ID, u.Credits)
		s.log.Info("credits expired", "user_id", u.ID, "credits", u.Credits)
	}
}
