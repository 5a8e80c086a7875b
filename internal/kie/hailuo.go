package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	hailuoModelName  = "hailuo/2-3-image-to-video-pro"
	hailuoResolution = "768P"
)

func (g *Gateway) submitHailuo(ctx context.Context, req SubmitRequest) (string, error) {
	// Hailuo has two duration tiers; anything that is not 10 maps to 6.
	duration := "6"
	if req.Duration != nil && *req.Duration == 10 {
		duration = "10"
	}

	payload := map[string]any{
		"model": hailuoModelName,
		"input": map[string]any{
			"prompt":     req.Prompt,
			"image_url":  req.ImageURL,
			"duration":   duration,
			"resolution": hailuoResolution,
		},
	}
	if req.CallbackURL != "" {
		payload["callBackUrl"] = req.CallbackURL
	}

	return g.createJob(ctx, payload)
}

// createJob posts to the shared jobs API and extracts the job id. Used by
// every provider that runs on /api/v1/jobs.
func (g *Gateway) createJob(ctx context.Context, payload map[string]any) (string, error) {
	data, err := g.client.postJSON(ctx, "/api/v1/jobs/createTask", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode create task response: %w", err)
	}
	if created.TaskID == "" {
		return "", &ProviderError{Message: "empty taskId in response"}
	}
	return created.TaskID, nil
}

// pollJob fetches jobs-API task status. Result URLs arrive inside
// info.resultUrls, which may be a JSON string or an already-decoded list.
func (g *Gateway) pollJob(ctx context.Context, taskID string) (TaskStatus, error) {
	query := url.Values{}
	query.Set("taskId", taskID)

	data, err := g.client.getJSON(ctx, "/api/v1/jobs/getTaskDetail", query)
	if err != nil {
		return TaskStatus{}, err
	}

	var detail struct {
		TaskID      string `json:"taskId"`
		SuccessFlag int    `json:"successFlag"`
		FailMsg     string `json:"failMsg"`
		Info        struct {
			ResultURLs json.RawMessage `json:"resultUrls"`
		} `json:"info"`
	}
	if err := json.Unmarshal(data, &detail); err != nil {
		return TaskStatus{}, fmt.Errorf("decode task detail: %w", err)
	}

	status := TaskStatus{
		TaskID: taskID,
		Phase:  phaseFromFlag(detail.SuccessFlag),
	}
	switch status.Phase {
	case PhaseCompleted:
		status.ResultURLs = DecodeResultURLs(detail.Info.ResultURLs)
	case PhaseFailed:
		status.ErrorMessage = detail.FailMsg
	}
	return status, nil
}
