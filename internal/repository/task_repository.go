package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aieffects/videobot/internal/models"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Insert(ctx context.Context, task *models.Task) error {
	const query = `
INSERT INTO task_queue (id, user_id, model, prompt, image_url, video_url, duration, sound, character_orientation, status, credits_charged)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?)`
	sound := 0
	if task.Sound {
		sound = 1
	}
	var duration any
	if task.Duration != nil {
		duration = *task.Duration
	}
	if _, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Model, task.Prompt, task.ImageURL, task.VideoURL,
		duration, sound, task.CharacterOrientation, task.Status, task.CreditsCharged,
	); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	const query = `
SELECT id, user_id, model, COALESCE(prompt, ''), COALESCE(image_url, ''), COALESCE(video_url, ''), duration, sound, COALESCE(character_orientation, ''), status, credits_charged, COALESCE(result_url, ''), COALESCE(error_message, ''), created_at, completed_at
FROM task_queue WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var t models.Task
	var sound int
	var duration sql.NullInt64
	var completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Model, &t.Prompt, &t.ImageURL, &t.VideoURL, &duration, &sound, &t.CharacterOrientation, &t.Status, &t.CreditsCharged, &t.ResultURL, &t.ErrorMessage, &t.CreatedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Sound = sound != 0
	if duration.Valid {
		d := int(duration.Int64)
		t.Duration = &d
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

// MarkCompleted moves a processing task to completed. Returns false when the
// task was already terminal, which makes duplicate callbacks no-ops.
func (r *TaskRepository) MarkCompleted(ctx context.Context, id, resultURL string, at time.Time) (bool, error) {
	const query = `
UPDATE task_queue SET status = ?, result_url = NULLIF(?, ''), completed_at = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.TaskCompleted, resultURL, at, id, models.TaskProcessing)
	if err != nil {
		return false, fmt.Errorf("mark task completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("completed rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed moves a processing task to failed under the same
// already-terminal guard as MarkCompleted.
func (r *TaskRepository) MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (bool, error) {
	const query = `
UPDATE task_queue SET status = ?, error_message = NULLIF(?, ''), completed_at = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.TaskFailed, errorMessage, at, id, models.TaskProcessing)
	if err != nil {
		return false, fmt.Errorf("mark task failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasProcessing reports whether the user has a processing task created at or
// after since.
func (r *TaskRepository) HasProcessing(ctx context.Context, userID int64, since time.Time) (bool, error) {
	const query = `
SELECT 1 FROM task_queue
WHERE user_id = ? AND status = ? AND created_at >= ?
LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, query, userID, models.TaskProcessing, since).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending task: %w", err)
	}
	return true, nil
}

// CountProcessing returns the current queue depth across all users.
func (r *TaskRepository) CountProcessing(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM task_queue WHERE status = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, models.TaskProcessing).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processing tasks: %w", err)
	}
	return count, nil
}
