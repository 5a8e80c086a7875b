package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/repository"
	"github.com/aieffects/videobot/internal/service"
)

// generateRequest carries a generation order. Video references come either
// as inline base64 (video) or as an already-hosted link (video_url, used by
// library presets); the link wins and skips the upload.
type generateRequest struct {
	Model                string `json:"model"`
	Prompt               string `json:"prompt"`
	Image                string `json:"image"`
	Video                string `json:"video"`
	VideoURL             string `json:"video_url"`
	Duration             *int   `json:"duration"`
	Sound                bool   `json:"sound"`
	AspectRatio          string `json:"aspect_ratio"`
	CharacterOrientation string `json:"character_orientation"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" && req.Image == "" && req.Video == "" && req.VideoURL == "" {
		s.writeError(w, http.StatusBadRequest, "empty_request", nil)
		return
	}

	uid := userID(r)

	pending, err := s.tasks.HasPending(r.Context(), uid)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if pending {
		s.writeError(w, http.StatusConflict, "generation_in_progress", nil)
		return
	}

	image, imageType, err := decodeAsset(req.Image)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_image", nil)
		return
	}
	video, videoType, err := decodeAsset(req.Video)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_video", nil)
		return
	}

	task, err := s.tasks.ReserveAndSubmit(r.Context(), service.GenerateRequest{
		UserID:               uid,
		Model:                models.ModelType(req.Model),
		Prompt:               req.Prompt,
		Image:                image,
		ImageContentType:     imageType,
		Video:                video,
		VideoContentType:     videoType,
		VideoURL:             req.VideoURL,
		Duration:             req.Duration,
		Sound:                req.Sound,
		AspectRatio:          req.AspectRatio,
		CharacterOrientation: req.CharacterOrientation,
	})
	if err != nil {
		var insufficient service.ErrInsufficientCredits
		if errors.As(err, &insufficient) {
			s.writeError(w, http.StatusPaymentRequired, "insufficient_credits", map[string]any{
				"need": insufficient.Need,
				"have": insufficient.Have,
			})
			return
		}
		if errors.Is(err, service.ErrVideoRequired) {
			s.writeError(w, http.StatusBadRequest, "video_required", nil)
			return
		}
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"task_id":         task.ID,
		"status":          task.Status,
		"credits_charged": task.CreditsCharged,
	})
}

// decodeAsset accepts either a plain base64 string or a data URL and returns
// the raw bytes with the declared content type.
func decodeAsset(value string) ([]byte, string, error) {
	if value == "" {
		return nil, "", nil
	}
	contentType := ""
	if strings.HasPrefix(value, "data:") {
		header, rest, ok := strings.Cut(value[len("data:"):], ",")
		if !ok {
			return nil, "", errors.New("malformed data url")
		}
		contentType = strings.TrimSuffix(header, ";base64")
		value = rest
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, live, err := s.tasks.Status(r.Context(), taskID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task_not_found", nil)
		return
	}
	if task.UserID != userID(r) {
		s.writeError(w, http.StatusNotFound, "task_not_found", nil)
		return
	}

	body := map[string]any{
		"task_id":    task.ID,
		"status":     task.Status,
		"result_url": task.ResultURL,
		"error":      task.ErrorMessage,
	}
	if live != nil {
		body["provider_phase"] = live.Phase
		if len(live.ResultURLs) > 0 {
			body["result_url"] = live.ResultURLs[0]
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user_not_found", nil)
		return
	}
	body := map[string]any{
		"id":             user.ID,
		"credits":        user.Credits,
		"selected_model": user.SelectedModel,
	}
	if user.CreditsExpireAt != nil {
		body["credits_expire_at"] = user.CreditsExpireAt
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleHasPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.tasks.HasPending(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"has_pending": pending})
}

type settingsRequest struct {
	SelectedModel string `json:"selected_model"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if err := s.users.SetSelectedModel(r.Context(), userID(r), models.ModelType(req.SelectedModel)); err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown_model", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPlans(w http.ResponseWriter, _ *http.Request) {
	plans := make([]models.Plan, 0, len(service.Plans))
	for _, id := range []string{"starter", "creator", "pro"} {
		plans = append(plans, service.Plans[id])
	}
	s.writeJSON(w, http.StatusOK, plans)
}

// handleProviderCallback accepts generation results. It always answers 200:
// the reconciler logs and drops whatever it cannot apply, and a provider
// retry would not change that.
func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.log.Warn("read callback body", "err", err)
	} else {
		s.callbacks.Handle(r.Context(), body)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createPaymentRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	payment, err := s.payments.CreateOrReuse(r.Context(), userID(r), req.PlanID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "payment_failed", nil)
		s.log.Error("create payment", "err", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"payment_id":         payment.ID,
		"confirmation_token": payment.ConfirmationToken,
		"status":             payment.Status,
	})
}

// yooKassaEvent is the webhook notification envelope.
type yooKassaEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

// handlePaymentWebhook applies a YooKassa notification. The payment state is
// re-read from the YooKassa API rather than trusted from the body, since the
// endpoint is unauthenticated.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event yooKassaEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil || event.Object.ID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if _, err := s.payments.Reconcile(r.Context(), event.Object.ID); err != nil {
		s.log.Error("payment webhook", "payment_id", event.Object.ID, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	payment, err := s.payments.Reconcile(r.Context(), req.PaymentID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if payment == nil || payment.UserID != userID(r) {
		s.writeError(w, http.StatusNotFound, "payment_not_found", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"credits":    payment.Credits,
	})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.users.ListTags(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tags": names})
}

type createTagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	name, err := s.users.CreateTag(r.Context(), userID(r), req.Name)
	switch {
	case errors.Is(err, service.ErrInvalidTag):
		s.writeError(w, http.StatusBadRequest, "invalid_tag", nil)
	case errors.Is(err, repository.ErrTagTaken):
		s.writeError(w, http.StatusConflict, "tag_taken", nil)
	case err != nil:
		s.internalError(w, err)
	default:
		s.writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	}
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	err := s.users.DeleteTag(r.Context(), userID(r), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, service.ErrTagNotFound):
		s.writeError(w, http.StatusNotFound, "tag_not_found", nil)
	case err != nil:
		s.internalError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
