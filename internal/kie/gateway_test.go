package kie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aieffects/videobot/internal/models"
	"github.com/aieffects/videobot/internal/ratelimit"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("test-key", srv.URL, 5*time.Second, nil)
	limiter := ratelimit.New(100, time.Second, nil)
	return NewGateway(client, limiter)
}

func intp(v int) *int { return &v }

func TestSubmitHailuoSuccess(t *testing.T) {
	var captured map[string]any
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/jobs/createTask", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": "job-123"},
		})
	})

	id, err := g.Submit(context.Background(), SubmitRequest{
		Model:    models.ModelHailuo,
		Prompt:   "a cat",
		ImageURL: "https://cdn/img.jpg",
		Duration: intp(10),
	})
	require.NoError(t, err)
	require.Equal(t, "job-123", id)

	require.Equal(t, hailuoModelName, captured["model"])
	input := captured["input"].(map[string]any)
	require.Equal(t, "10", input["duration"])
	require.Equal(t, "https://cdn/img.jpg", input["image_url"])
}

func TestSubmitEnvelopeErrorBecomesProviderError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 422,
			"msg":  "image too large",
		})
	})

	_, err := g.Submit(context.Background(), SubmitRequest{
		Model:    models.ModelKling,
		ImageURL: "https://cdn/img.jpg",
	})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Message, "image too large")
}

func TestSubmitUnsupportedModel(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := g.Submit(context.Background(), SubmitRequest{Model: models.ModelType("bogus")})
	require.Error(t, err)
}

func TestPollVeoStringifiedResultURLs(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/veo/record-info", r.URL.Path)
		require.Equal(t, "job-1", r.URL.Query().Get("taskId"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"taskId":      "job-1",
				"successFlag": 1,
				"resultUrls":  `["https://cdn/video.mp4"]`,
			},
		})
	})

	status, err := g.Poll(context.Background(), models.ModelVeoFast, "job-1")
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, status.Phase)
	require.Equal(t, []string{"https://cdn/video.mp4"}, status.ResultURLs)
}

func TestPollJobStatuses(t *testing.T) {
	tests := []struct {
		name      string
		data      map[string]any
		wantPhase Phase
		wantURLs  []string
		wantErr   string
	}{
		{
			name:      "processing",
			data:      map[string]any{"successFlag": 0},
			wantPhase: PhaseProcessing,
		},
		{
			name: "completed with info list",
			data: map[string]any{
				"successFlag": 1,
				"info":        map[string]any{"resultUrls": []string{"https://cdn/a.mp4"}},
			},
			wantPhase: PhaseCompleted,
			wantURLs:  []string{"https://cdn/a.mp4"},
		},
		{
			name: "completed with encoded info string",
			data: map[string]any{
				"successFlag": 1,
				"info":        map[string]any{"resultUrls": `["https://cdn/b.mp4"]`},
			},
			wantPhase: PhaseCompleted,
			wantURLs:  []string{"https://cdn/b.mp4"},
		},
		{
			name: "completed with malformed info degrades to empty",
			data: map[string]any{
				"successFlag": 1,
				"info":        map[string]any{"resultUrls": "{broken"},
			},
			wantPhase: PhaseCompleted,
		},
		{
			name:      "failed",
			data:      map[string]any{"successFlag": 3, "failMsg": "content rejected"},
			wantPhase: PhaseFailed,
			wantErr:   "content rejected",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": tc.data})
			})
			status, err := g.Poll(context.Background(), models.ModelKling, "job-x")
			require.NoError(t, err)
			require.Equal(t, tc.wantPhase, status.Phase)
			require.Equal(t, tc.wantURLs, status.ResultURLs)
			require.Equal(t, tc.wantErr, status.ErrorMessage)
		})
	}
}

func TestDecodeResultJSON(t *testing.T) {
	require.Equal(t, []string{"https://cdn/v.mp4"}, DecodeResultJSON(`{"resultUrls":["https://cdn/v.mp4"]}`))
	require.Nil(t, DecodeResultJSON(""))
	require.Nil(t, DecodeResultJSON("{not json"))
}
