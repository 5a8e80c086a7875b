package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aieffects/videobot/internal/kie"
	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/service"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func (s *memUserStore) FindByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (s *memUserStore) DebitCredits(_ context.Context, userID int64, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.Credits < amount {
		return false, nil
	}
	u.Credits -= amount
	return true, nil
}

func (s *memUserStore) CreditCredits(_ context.Context, userID int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Credits += amount
	}
	return nil
}

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func (s *memTaskStore) Insert(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memTaskStore) FindByID(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (s *memTaskStore) MarkCompleted(_ context.Context, id, resultURL string, at time.Time) (bool, error) {
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

func (s *memTaskStore) MarkFailed(_ context.Context, id, errorMessage string, at time.Time) (bool, error) {
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

func (s *memTaskStore) HasProcessing(_ context.Context, userID int64, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.UserID == userID && t.Status == models.TaskProcessing && !t.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memTaskStore) CountProcessing(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks), nil
}

type stubGateway struct{ id string }

func (g *stubGateway) Submit(_ context.Context, _ kie.SubmitRequest) (string, error) {
	return g.id, nil
}

func (g *stubGateway) Poll(_ context.Context, _ models.ModelType, taskID string) (kie.TaskStatus, error) {
	return kie.TaskStatus{TaskID: taskID, Phase: kie.PhaseProcessing}, nil
}

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, _ []byte, _ string) (string, error) {
	return "https://cdn.test/asset", nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyQueued(context.Context, int64, int)                {}
func (noopNotifier) NotifyGenerationComplete(context.Context, int64, string) {}
func (noopNotifier) NotifyGenerationFailed(context.Context, int64, int)      {}

func newTestServer(t *testing.T, users *memUserStore, tasks *memTaskStore) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	taskSvc := service.NewTaskService(users, tasks, &stubGateway{id: "job-1"}, stubUploader{}, noopNotifier{}, "https://bot.test/api/callback/kie", log)
	callbackSvc := service.NewCallbackService(taskSvc, log)
	return NewServer(":0", log, taskSvc, callbackSvc, nil, nil)
}

func TestGenerateRequiresAuth(t *testing.T) {
	srv := newTestServer(t,
		&memUserStore{users: map[int64]*models.User{}},
		&memTaskStore{tasks: map[string]*models.Task{}},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"veo3_fast","prompt":"x"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateInsufficientCredits(t *testing.T) {
	srv := newTestServer(t,
		&memUserStore{users: map[int64]*models.User{7: {ID: 7, Credits: 5}}},
		&memTaskStore{tasks: map[string]*models.Task{}},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"veo3_fast","prompt":"a cat"}`))
	req.Header.Set("X-Telegram-User-Id", "7")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), `"insufficient_credits"`)
	require.Contains(t, rec.Body.String(), `"need":60`)
	require.Contains(t, rec.Body.String(), `"have":5`)
}

func TestGenerateHappyPath(t *testing.T) {
	users := &memUserStore{users: map[int64]*models.User{7: {ID: 7, Credits: 100}}}
	tasks := &memTaskStore{tasks: map[string]*models.Task{}}
	srv := newTestServer(t, users, tasks)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"veo3_fast","prompt":"a cat"}`))
	req.Header.Set("X-Telegram-User-Id", "7")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"task_id":"job-1"`)

	// A second request is blocked while the first is processing.
	req = httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"veo3_fast","prompt":"another"}`))
	req.Header.Set("X-Telegram-User-Id", "7")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusHiddenFromOtherUsers(t *testing.T) {
	tasks := &memTaskStore{tasks: map[string]*models.Task{
		"job-1": {ID: "job-1", UserID: 7, Status: models.TaskCompleted, ResultURL: "https://video.test/a.mp4"},
	}}
	srv := newTestServer(t, &memUserStore{users: map[int64]*models.User{}}, tasks)

	req := httptest.NewRequest(http.MethodGet, "/api/status/job-1", nil)
	req.Header.Set("X-Telegram-User-Id", "8")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status/job-1", nil)
	req.Header.Set("X-Telegram-User-Id", "7")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://video.test/a.mp4")
}

// The provider retries non-200 callbacks forever, so even unusable payloads
// must be answered with 200.
func TestCallbackAlwaysAnswers200(t *testing.T) {
	users := &memUserStore{users: map[int64]*models.User{7: {ID: 7}}}
	tasks := &memTaskStore{tasks: map[string]*models.Task{
		"job-1": {ID: "job-1", UserID: 7, Status: models.TaskProcessing, CreditsCharged: 60, CreatedAt: time.Now()},
	}}
	srv := newTestServer(t, users, tasks)

	for _, body := range []string{
		`garbage`,
		`{"code": 200, "data": {}}`,
		`{"code": 200, "data": {"taskId": "job-1", "resultJson": "{\"resultUrls\":[\"https://video.test/a.mp4\"]}"}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/callback/kie", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	task, err := tasks.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, models.TaskCompleted, task.Status)
}
