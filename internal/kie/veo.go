package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Veo runs on its own endpoints rather than the generic jobs API.
// Image-to-video generation is the only mode this bot uses.

const veoGenerationType = "FIRST_AND_LAST_FRAMES_2_VIDEO"

func (g *Gateway) submitVeo(ctx context.Context, req SubmitRequest) (string, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "Auto"
	}

	payload := map[string]any{
		"prompt":            req.Prompt,
		"model":             string(req.Model),
		"aspect_ratio":      aspect,
		"enableTranslation": true,
		"imageUrls":         []string{req.ImageURL},
		"generationType":    veoGenerationType,
	}
	if req.CallbackURL != "" {
		payload["callBackUrl"] = req.CallbackURL
	}

	data, err := g.client.postJSON(ctx, "/api/v1/veo/generate", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode veo create response: %w", err)
	}
	if created.TaskID == "" {
		return "", &ProviderError{Message: "empty taskId in veo response"}
	}
	return created.TaskID, nil
}

func (g *Gateway) pollVeo(ctx context.Context, taskID string) (TaskStatus, error) {
	query := url.Values{}
	query.Set("taskId", taskID)

	data, err := g.client.getJSON(ctx, "/api/v1/veo/record-info", query)
	if err != nil {
		return TaskStatus{}, err
	}

	var record struct {
		TaskID      string          `json:"taskId"`
		SuccessFlag int             `json:"successFlag"`
		ResultURLs  json.RawMessage `json:"resultUrls"`
		ErrorMsg    string          `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return TaskStatus{}, fmt.Errorf("decode veo record: %w", err)
	}

	status := TaskStatus{
		TaskID: taskID,
		Phase:  phaseFromFlag(record.SuccessFlag),
	}
	switch status.Phase {
	case PhaseCompleted:
		status.ResultURLs = DecodeResultURLs(record.ResultURLs)
	case PhaseFailed:
		status.ErrorMessage = record.ErrorMsg
	}
	return status, nil
}
