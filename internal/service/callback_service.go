package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aieffects/videobot/internal/kie"
)

// CallbackService reconciles provider callbacks against the task ledger. It
// never returns an error to the caller: the provider retries on non-200, and
// a malformed or stale callback has nothing a retry can fix.
type CallbackService struct {
	tasks *TaskService
	log   *slog.Logger
}

func NewCallbackService(tasks *TaskService, log *slog.Logger) *CallbackService {
	return &CallbackService{tasks: tasks, log: log}
}

// callbackPayload covers both callback shapes the provider sends: the veo
// family carries result URLs as a JSON-encoded string in resultJson, the jobs
// family as info.resultUrls (itself a list or a JSON-encoded string).
type callbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID     string `json:"taskId"`
		ResultJSON string `json:"resultJson"`
		Info       struct {
			ResultURLs json.RawMessage `json:"resultUrls"`
		} `json:"info"`
	} `json:"data"`
}

// Handle processes one raw callback body.
func (s *CallbackService) Handle(ctx context.Context, raw []byte) {
	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("undecodable callback", "error", err)
		return
	}
	taskID := payload.Data.TaskID
	if taskID == "" {
		s.log.Warn("callback without task id")
		return
	}

	if payload.Code != 200 {
		msg := payload.Msg
		if msg == "" {
			msg = "generation failed"
		}
		if err := s.tasks.Fail(ctx, taskID, msg); err != nil {
			s.log.Error("reconcile failure callback", "task_id", taskID, "error", err)
		}
		return
	}

	urls := kie.DecodeResultJSON(payload.Data.ResultJSON)
	if len(urls) == 0 {
		urls = kie.DecodeResultURLs(payload.Data.Info.ResultURLs)
	}
	// The success code alone decides the outcome: a decodable-but-empty URL
	// list still completes the task, just without a result.
	resultURL := ""
	if len(urls) > 0 {
		resultURL = urls[0]
	}
	if err := s.tasks.Complete(ctx, taskID, resultURL); err != nil {
		s.log.Error("reconcile success callback", "task_id", taskID, "error", err)
	}
}
