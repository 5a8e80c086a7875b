// Package pricing computes the deterministic credit cost of a generation
// request. Cost must be derived here both before submission and at charge
// time; a client-supplied price is never trusted.
package pricing

import "github.com/aieffects/videobot/internal/models"

const (
	veoFastCost     = 60
	hailuoShortCost = 45
	hailuoLongCost  = 90
	klingBaseCost   = 55

	// Motion control is billed per second of input video.
	motionControlPerSecond = 6
	// Used only when the duration is missing, which normal clients never send.
	motionControlFallbackCost = 100

	unknownModelCost = 15
)

// Cost returns the credit price for a request. duration is nil when the
// client did not send one. The function is total: unknown models fall back
// to a flat price instead of failing.
func Cost(model models.ModelType, duration *int, sound bool) int {
	switch model {
	case models.ModelVeoFast:
		return veoFastCost

	case models.ModelHailuo:
		if duration != nil && *duration == 10 {
			return hailuoLongCost
		}
		return hailuoShortCost

	case models.ModelKling:
		// 5s no sound: 55, 10s no sound: 110, 5s sound: 110, 10s sound: 220.
		cost := klingBaseCost
		if duration != nil && *duration == 10 {
			cost *= 2
		}
		if sound {
			cost *= 2
		}
		return cost

	case models.ModelKlingMotion:
		if duration != nil {
			return *duration * motionControlPerSecond
		}
		return motionControlFallbackCost
	}

	return unknownModelCost
}
