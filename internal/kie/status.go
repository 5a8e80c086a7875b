package kie

import "encoding/json"

// Phase is the canonical lifecycle state of a provider job.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// TaskStatus is the canonical poll result across all providers.
type TaskStatus struct {
	TaskID       string
	Phase        Phase
	ResultURLs   []string
	ErrorMessage string
}

// phaseFromFlag translates the provider's numeric success flag:
// 0=processing, 1=completed, anything else=failed.
func phaseFromFlag(flag int) Phase {
	switch flag {
	case 0:
		return PhaseProcessing
	case 1:
		return PhaseCompleted
	default:
		return PhaseFailed
	}
}

// DecodeResultURLs parses a provider result-URL field that may be either a
// JSON array of strings or a JSON string containing an encoded array.
// Malformed or missing payloads degrade to an empty list, never an error.
func DecodeResultURLs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		return urls
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if encoded == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &urls); err != nil {
		return nil
	}
	return urls
}

// DecodeResultJSON parses the resultJson field: a JSON-encoded string whose
// payload carries {"resultUrls": [...]}. Malformed input yields an empty list.
func DecodeResultJSON(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		return nil
	}
	return result.ResultURLs
}
