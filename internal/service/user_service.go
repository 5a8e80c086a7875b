package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aieffects/videobot/internal/models"
)

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ErrInvalidTag rejects tag names outside [a-zA-Z0-9_-].
var ErrInvalidTag = errors.New("invalid tag name")

// ErrTagNotFound is returned when the user deletes a tag they do not own.
var ErrTagNotFound = errors.New("tag not found")

type ProfileStore interface {
	Ensure(ctx context.Context, user *models.User) (*models.User, bool, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	SetSelectedModel(ctx context.Context, userID int64, model models.ModelType) error
	SetReferrer(ctx context.Context, userID, referrerID int64, tag string) error
}

type ReferralStore interface {
	CreateTag(ctx context.Context, name string, userID int64) error
	DeleteTag(ctx context.Context, name string, userID int64) (bool, error)
	ListTags(ctx context.Context, userID int64) ([]models.RefTag, error)
	FindTagOwner(ctx context.Context, name string) (*int64, error)
	RecordClick(ctx context.Context, ev models.RefEvent) error
	DeleteEvents(ctx context.Context, referrerID int64, tag string) error
}

type UserService struct {
	users     ProfileStore
	referrals ReferralStore
	log       *slog.Logger
	now       func() time.Time
}

func NewUserService(users ProfileStore, referrals ReferralStore, log *slog.Logger) *UserService {
	return &UserService{users: users, referrals: referrals, log: log, now: time.Now}
}

// Ensure registers the user on first contact and attributes them to a
// referral tag when one came with the start link. Attribution happens only
// for newly created users: a returning user opening a tagged link keeps
// their original referrer and produces no click event.
func (s *UserService) Ensure(ctx context.Context, profile *models.User, refTag string) (*models.User, error) {
	user, created, err := s.users.Ensure(ctx, profile)
	if err != nil {
		return nil, err
	}

	if refTag != "" && created {
		s.attribute(ctx, user, refTag)
	}
	return user, nil
}

func (s *UserService) attribute(ctx context.Context, user *models.User, tag string) {
	tag = strings.ToLower(tag)
	owner, err := s.referrals.FindTagOwner(ctx, tag)
	if err != nil {
		s.log.Warn("tag owner lookup failed", "tag", tag, "error", err)
		return
	}
	if owner == nil || *owner == user.ID {
		return
	}

	if err := s.users.SetReferrer(ctx, user.ID, *owner, tag); err != nil {
		s.log.Warn("set referrer failed", "user_id", user.ID, "tag", tag, "error", err)
	} else {
		user.ReferredByUserID = owner
		user.ReferredByTag = tag
	}

	ev := models.RefEvent{
		Type:            models.RefEventClick,
		ReferrerUserID:  owner,
		Tag:             tag,
		TriggeredUserID: user.ID,
		IsNewUser:       true,
		Date:            s.now().Format("2006-01-02"),
	}
	if err := s.referrals.RecordClick(ctx, ev); err != nil {
		s.log.Warn("record click failed", "tag", tag, "error", err)
	}
}

func (s *UserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *UserService) SetSelectedModel(ctx context.Context, userID int64, model models.ModelType) error {
	switch model {
	case models.ModelVeoFast, models.ModelHailuo, models.ModelKling, models.ModelKlingMotion:
	default:
		return errors.New("unknown model")
	}
	return s.users.SetSelectedModel(ctx, userID, model)
}

// CreateTag registers a referral tag for the user. Names are lowercased and
// globally unique.
func (s *UserService) CreateTag(ctx context.Context, userID int64, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) > 64 || !tagPattern.MatchString(name) {
		return "", ErrInvalidTag
	}
	if err := s.referrals.CreateTag(ctx, name, userID); err != nil {
		return "", err
	}
	s.log.Info("tag created", "tag", name, "user_id", userID)
	return name, nil
}

// DeleteTag removes the user's tag along with its event history, so the name
// can be re-registered with a clean slate.
func (s *UserService) DeleteTag(ctx context.Context, userID int64, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	deleted, err := s.referrals.DeleteTag(ctx, name, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTagNotFound
	}
	if err := s.referrals.DeleteEvents(ctx, userID, name); err != nil {
		s.log.Warn("delete tag events failed", "tag", name, "error", err)
	}
	return nil
}

func (s *UserService) ListTags(ctx context.Context, userID int64) ([]models.RefTag, error) {
	return s.referrals.ListTags(ctx, userID)
}
