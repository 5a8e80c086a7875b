package kie

import "context"

func (g *Gateway) submitKling(ctx context.Context, req SubmitRequest) (string, error) {
	// Kling's duration domain is {5,10}; anything that is not 10 maps to 5.
	duration := "5"
	if req.Duration != nil && *req.Duration == 10 {
		duration = "10"
	}

	payload := map[string]any{
		"model": "kling-2.6/image-to-video",
		"input": map[string]any{
			"prompt":     req.Prompt,
			"image_urls": []string{req.ImageURL},
			"duration":   duration,
			"sound":      req.Sound,
		},
	}
	if req.CallbackURL != "" {
		payload["callBackUrl"] = req.CallbackURL
	}

	return g.createJob(ctx, payload)
}

func (g *Gateway) submitKlingMotion(ctx context.Context, req SubmitRequest) (string, error) {
	orientation := req.CharacterOrientation
	if orientation == "" {
		orientation = "video"
	}

	payload := map[string]any{
		"model": "kling-2.6/motion-control",
		"input": map[string]any{
			"prompt":                req.Prompt,
			"input_urls":            []string{req.ImageURL},
			"video_urls":            []string{req.VideoURL},
			"character_orientation": orientation,
			"mode":                  "720p",
		},
	}
	if req.CallbackURL != "" {
		payload["callBackUrl"] = req.CallbackURL
	}

	return g.createJob(ctx, payload)
}
