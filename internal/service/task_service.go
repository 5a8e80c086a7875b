// Package service holds the application logic between the HTTP/bot surfaces
// and the repositories: credit reservation, callback reconciliation, payment
// processing, referral attribution and credit expiry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aieffects/videobot/internal/kie"
	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/pricing"
)

// pendingWindow bounds how far back a processing task still blocks new
// submissions. Tasks older than this are assumed lost (callback never came).
const pendingWindow = 30 * time.Minute

// UserStore is the slice of the user repository the task ledger needs.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	DebitCredits(ctx context.Context, userID int64, amount int) (bool, error)
	CreditCredits(ctx context.Context, userID int64, amount int) error
}

type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	MarkCompleted(ctx context.Context, id, resultURL string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (bool, error)
	HasProcessing(ctx context.Context, userID int64, since time.Time) (bool, error)
	CountProcessing(ctx context.Context) (int, error)
}

// Gateway submits generation jobs to the provider and polls their state.
type Gateway interface {
	Submit(ctx context.Context, req kie.SubmitRequest) (string, error)
	Poll(ctx context.Context, model models.ModelType, taskID string) (kie.TaskStatus, error)
}

// Uploader stores user-supplied assets and returns a public URL the provider
// can fetch.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Notifier delivers user-facing messages about task and balance changes.
type Notifier interface {
	NotifyQueued(ctx context.Context, userID int64, position int)
	NotifyGenerationComplete(ctx context.Context, userID int64, videoURL string)
	NotifyGenerationFailed(ctx context.Context, userID int64, refunded int)
}

// ErrInsufficientCredits carries the balance the user has against the price
// of the requested generation.
type ErrInsufficientCredits struct {
	Have int
	Need int
}

func (e ErrInsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Have, e.Need)
}

// ErrVideoRequired rejects motion-control requests without a driving video.
var ErrVideoRequired = errors.New("video required")

// GenerateRequest is a user's generation order before pricing and submission.
// VideoURL carries an already-hosted video (library presets); when set, the
// raw Video bytes are ignored and nothing is uploaded.
type GenerateRequest struct {
	UserID               int64
	Model                models.ModelType
	Prompt               string
	Image                []byte
	ImageContentType     string
	Video                []byte
	VideoContentType     string
	VideoURL             string
	Duration             *int
	Sound                bool
	AspectRatio          string
	CharacterOrientation string
}

type TaskService struct {
	users       UserStore
	tasks       TaskStore
	gateway     Gateway
	uploader    Uploader
	notifier    Notifier
	callbackURL string
	log         *slog.Logger
	now         func() time.Time
}

func NewTaskService(users UserStore, tasks TaskStore, gateway Gateway, uploader Uploader, notifier Notifier, callbackURL string, log *slog.Logger) *TaskService {
	return &TaskService{
		users:       users,
		tasks:       tasks,
		gateway:     gateway,
		uploader:    uploader,
		notifier:    notifier,
		callbackURL: callbackURL,
		log:         log,
		now:         time.Now,
	}
}

// ReserveAndSubmit prices the request, submits it to the provider, debits the
// user and records the task. The debit happens after submission so a provider
// rejection never touches the balance; the conditional decrement covers the
// balance changing between the price check and the debit.
func (s *TaskService) ReserveAndSubmit(ctx context.Context, req GenerateRequest) (*models.Task, error) {
	if req.Model == models.ModelKlingMotion && len(req.Video) == 0 && req.VideoURL == "" {
		return nil, ErrVideoRequired
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %d", req.UserID)
	}

	cost := pricing.Cost(req.Model, req.Duration, req.Sound)
	if user.Credits < cost {
		return nil, ErrInsufficientCredits{Have: user.Credits, Need: cost}
	}

	var imageURL string
	if len(req.Image) > 0 {
		imageURL, err = s.uploader.Upload(ctx, req.Image, req.ImageContentType)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
	}
	videoURL := req.VideoURL
	if videoURL == "" && len(req.Video) > 0 {
		videoURL, err = s.uploader.Upload(ctx, req.Video, req.VideoContentType)
		if err != nil {
			return nil, fmt.Errorf("upload video: %w", err)
		}
	}

	taskID, err := s.gateway.Submit(ctx, kie.SubmitRequest{
		Model:                req.Model,
		Prompt:               req.Prompt,
		ImageURL:             imageURL,
		VideoURL:             videoURL,
		Duration:             req.Duration,
		Sound:                req.Sound,
		AspectRatio:          req.AspectRatio,
		CharacterOrientation: req.CharacterOrientation,
		CallbackURL:          s.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	debited, err := s.users.DebitCredits(ctx, req.UserID, cost)
	if err != nil {
		return nil, err
	}
	if !debited {
		// The balance dropped below the price while we were submitting.
		// The provider job runs unclaimed; its callback will miss the
		// ledger and be ignored.
		s.log.Warn("debit lost race after submit", "user_id", req.UserID, "task_id", taskID, "cost", cost)
		return nil, ErrInsufficientCredits{Have: user.Credits, Need: cost}
	}

	task := &models.Task{
		ID:                   taskID,
		UserID:               req.UserID,
		Model:                req.Model,
		Prompt:               req.Prompt,
		ImageURL:             imageURL,
		VideoURL:             videoURL,
		Duration:             req.Duration,
		Sound:                req.Sound,
		CharacterOrientation: req.CharacterOrientation,
		Status:               models.TaskProcessing,
		CreditsCharged:       cost,
		CreatedAt:            s.now(),
	}
	if err := s.tasks.Insert(ctx, task); err != nil {
		// The debit already happened; give it back rather than leave the
		// user charged for a task we cannot track.
		if refundErr := s.users.CreditCredits(ctx, req.UserID, cost); refundErr != nil {
			s.log.Error("refund after insert failure", "task_id", taskID, "error", refundErr)
		}
		return nil, fmt.Errorf("record task: %w", err)
	}

	position, err := s.tasks.CountProcessing(ctx)
	if err != nil {
		s.log.Warn("queue depth lookup failed", "error", err)
		position = 1
	}
	s.notifier.NotifyQueued(ctx, req.UserID, position)

	s.log.Info("task submitted", "task_id", taskID, "user_id", req.UserID, "model", req.Model, "cost", cost)
	return task, nil
}

// Complete finalizes a task with its result URL. Duplicate calls for the same
// task are no-ops; the first one wins and triggers the notification.
func (s *TaskService) Complete(ctx context.Context, taskID, resultURL string) error {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		s.log.Warn("completion for unknown task", "task_id", taskID)
		return nil
	}

	transitioned, err := s.tasks.MarkCompleted(ctx, taskID, resultURL, s.now())
	if err != nil {
		return err
	}
	if !transitioned {
		s.log.Info("task already terminal", "task_id", taskID)
		return nil
	}

	s.notifier.NotifyGenerationComplete(ctx, task.UserID, resultURL)
	s.log.Info("task completed", "task_id", taskID, "user_id", task.UserID)
	return nil
}

// Fail finalizes a task as failed and refunds the reserved credits. The
// refund is tied to the terminal transition, so duplicate failure callbacks
// refund exactly once.
func (s *TaskService) Fail(ctx context.Context, taskID, errorMessage string) error {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		s.log.Warn("failure for unknown task", "task_id", taskID)
		return nil
	}

	transitioned, err := s.tasks.MarkFailed(ctx, taskID, errorMessage, s.now())
	if err != nil {
		return err
	}
	if !transitioned {
		s.log.Info("task already terminal", "task_id", taskID)
		return nil
	}

	if task.CreditsCharged > 0 {
		if err := s.users.CreditCredits(ctx, task.UserID, task.CreditsCharged); err != nil {
			return fmt.Errorf("refund credits: %w", err)
		}
	}

	s.notifier.NotifyGenerationFailed(ctx, task.UserID, task.CreditsCharged)
	s.log.Info("task failed", "task_id", taskID, "user_id", task.UserID, "refunded", task.CreditsCharged, "error", errorMessage)
	return nil
}

// HasPending reports whether the user has a live generation inside the
// pending window.
func (s *TaskService) HasPending(ctx context.Context, userID int64) (bool, error) {
	return s.tasks.HasProcessing(ctx, userID, s.now().Add(-pendingWindow))
}

// Status returns the task combined with a live provider poll when the local
// record is still processing, so the status endpoint reflects provider state
// even before the callback lands.
func (s *TaskService) Status(ctx context.Context, taskID string) (*models.Task, *kie.TaskStatus, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task == nil {
		return nil, nil, nil
	}
	if task.Status.IsTerminal() {
		return task, nil, nil
	}

	live, err := s.gateway.Poll(ctx, task.Model, taskID)
	if err != nil {
		s.log.Warn("provider poll failed", "task_id", taskID, "error", err)
		return task, nil, nil
	}
	return task, &live, nil
}
