package kie

import (
	"context"
	"fmt"

	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/ratelimit"
)

// SubmitRequest is the canonical submission payload. Each provider adapter
// maps it onto its own wire shape; callers never see that heterogeneity.
type SubmitRequest struct {
	Model                models.ModelType
	Prompt               string
	ImageURL             string
	VideoURL             string
	Duration             *int
	Sound                bool
	AspectRatio          string
	CharacterOrientation string
	CallbackURL          string
}

// Gateway is the uniform submit/poll capability over all providers. Every
// submission reserves a rate-limit slot before touching the network, since
// all providers share one upstream account.
type Gateway struct {
	client  *Client
	limiter *ratelimit.Limiter
}

func NewGateway(client *Client, limiter *ratelimit.Limiter) *Gateway {
	return &Gateway{client: client, limiter: limiter}
}

// Submit starts a generation job and returns the provider-assigned job id.
// Transport and provider failures are not retried here: duplicate-submission
// semantics upstream are unknown, so retry policy belongs to the caller.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire rate limit slot: %w", err)
	}

	switch req.Model {
	case models.ModelVeoFast:
		return g.submitVeo(ctx, req)
	case models.ModelHailuo:
		return g.submitHailuo(ctx, req)
	case models.ModelKling:
		return g.submitKling(ctx, req)
	case models.ModelKlingMotion:
		return g.submitKlingMotion(ctx, req)
	}
	return "", fmt.Errorf("unsupported model: %s", req.Model)
}

// Poll fetches the current status of a job. Veo has its own status endpoint;
// all jobs-API models share one.
func (g *Gateway) Poll(ctx context.Context, model models.ModelType, taskID string) (TaskStatus, error) {
	switch model {
	case models.ModelVeoFast:
		return g.pollVeo(ctx, taskID)
	case models.ModelHailuo, models.ModelKling, models.ModelKlingMotion:
		return g.pollJob(ctx, taskID)
	}
	return TaskStatus{}, fmt.Errorf("unsupported model: %s", model)
}
