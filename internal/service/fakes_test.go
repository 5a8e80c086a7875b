package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aieffects/videobot/internal/kie"
	"github.com/aieffects/videobot/internal/models"
)

// fakeUserStore keeps user state in memory with the same atomics the MySQL
// repository provides.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: map[int64]*models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) FindByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) DebitCredits(_ context.Context, userID int64, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.Credits < amount {
		return false, nil
	}
	u.Credits -= amount
	return true, nil
}

func (s *fakeUserStore) CreditCredits(_ context.Context, userID int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Credits += amount
	}
	return nil
}

func (s *fakeUserStore) CreditWithExpiry(_ context.Context, userID int64, amount int, expireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.Credits += amount
	at := expireAt
	u.CreditsExpireAt = &at
	u.ExpiryWarned = false
	return nil
}

func (s *fakeUserStore) ListExpiring(_ context.Context, now, cutoff time.Time) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Credits > 0 && u.CreditsExpireAt != nil && u.CreditsExpireAt.After(now) && !u.CreditsExpireAt.After(cutoff) && !u.ExpiryWarned {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeUserStore) ListExpired(_ context.Context, now time.Time) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Credits > 0 && u.CreditsExpireAt != nil && !u.CreditsExpireAt.After(now) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeUserStore) MarkExpiryWarned(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.ExpiryWarned = true
	}
	return nil
}

func (s *fakeUserStore) ExpireCredits(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Credits = 0
		u.CreditsExpireAt = nil
		u.ExpiryWarned = false
	}
	return nil
}

func (s *fakeUserStore) credits(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Credits
}

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*models.Task{}}
}

func (s *fakeTaskStore) Insert(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *fakeTaskStore) FindByID(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (s *fakeTaskStore) MarkCompleted(_ context.Context, id, resultURL string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskProcessing {
		return false, nil
	}
	t.Status = models.TaskCompleted
	t.ResultURL = resultURL
	t.CompletedAt = &at
	return true, nil
}

func (s *fakeTaskStore) MarkFailed(_ context.Context, id, errorMessage string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskProcessing {
		return false, nil
	}
	t.Status = models.TaskFailed
	t.ErrorMessage = errorMessage
	t.CompletedAt = &at
	return true, nil
}

func (s *fakeTaskStore) HasProcessing(_ context.Context, userID int64, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.UserID == userID && t.Status == models.TaskProcessing && !t.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTaskStore) CountProcessing(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tasks {
		if t.Status == models.TaskProcessing {
			count++
		}
	}
	return count, nil
}

type fakeGateway struct {
	submitID   string
	submitErr  error
	submitted  []kie.SubmitRequest
	pollStatus kie.TaskStatus
	pollErr    error
}

func (g *fakeGateway) Submit(_ context.Context, req kie.SubmitRequest) (string, error) {
	g.submitted = append(g.submitted, req)
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return g.submitID, nil
}

func (g *fakeGateway) Poll(_ context.Context, _ models.ModelType, _ string) (kie.TaskStatus, error) {
	return g.pollStatus, g.pollErr
}

type fakeUploader struct {
	urls []string
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, contentType string) (string, error) {
	url := "https://cdn.test/" + contentType
	u.urls = append(u.urls, url)
	return url, nil
}

// fakeNotifier counts every notification kind.
type fakeNotifier struct {
	mu        sync.Mutex
	queued    int
	completed []string
	failed    []int
	paid      []int
	warnings  int
	expired   []int
}

func (n *fakeNotifier) NotifyQueued(_ context.Context, _ int64, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued++
}

func (n *fakeNotifier) NotifyGenerationComplete(_ context.Context, _ int64, videoURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, videoURL)
}

func (n *fakeNotifier) NotifyGenerationFailed(_ context.Context, _ int64, refunded int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, refunded)
}

func (n *fakeNotifier) NotifyPaymentSucceeded(_ context.Context, _ int64, credits int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, credits)
}

func (n *fakeNotifier) NotifyExpiryWarning(_ context.Context, _ int64, _ int, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings++
}

func (n *fakeNotifier) NotifyCreditsExpired(_ context.Context, _ int64, credits int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, credits)
}
