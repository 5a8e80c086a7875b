package models

import "time"

type ModelType string

const (
	ModelVeoFast     ModelType = "veo3_fast"
	ModelHailuo      ModelType = "minimax-hailuo"
	ModelKling       ModelType = "kling-2.6/image-to-video"
	ModelKlingMotion ModelType = "kling-2.6/motion-control"
)

type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status is absorbing.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentCanceled          PaymentStatus = "canceled"
	PaymentWaitingForCapture PaymentStatus = "waiting_for_capture"
)

type RefEventType string

const (
	RefEventClick   RefEventType = "click"
	RefEventRevenue RefEventType = "revenue"
)

type User struct {
	ID               int64
	Username         string
	FirstName        string
	LastName         string
	LanguageCode     string
	IsPremium        bool
	Credits          int
	CreditsExpireAt  *time.Time
	ExpiryWarned     bool
	SelectedModel    ModelType
	ReferredByUserID *int64
	ReferredByTag    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type RefTag struct {
	Name      string
	UserID    int64
	CreatedAt time.Time
}

// Task is one provider-side generation job tracked by its external job id.
// CreditsCharged is captured at reservation time and never changes afterwards.
type Task struct {
	ID                   string
	UserID               int64
	Model                ModelType
	Prompt               string
	ImageURL             string
	VideoURL             string
	Duration             *int
	Sound                bool
	CharacterOrientation string
	Status               TaskStatus
	CreditsCharged       int
	ResultURL            string
	ErrorMessage         string
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

type Payment struct {
	ID                string
	UserID            int64
	PlanID            string
	Credits           int
	Amount            string
	Currency          string
	Status            PaymentStatus
	ConfirmationToken string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

type RefEvent struct {
	ID              int64
	Type            RefEventType
	ReferrerUserID  *int64
	Tag             string
	TriggeredUserID int64
	IsNewUser       bool
	PaymentID       string
	Amount          int
	CreatedAt       time.Time
	Date            string
}

type Plan struct {
	ID       string
	Name     string
	Credits  int
	Amount   string
	Currency string
}
