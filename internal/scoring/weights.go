package scoring

import "cageside/internal/domain"

// Weights maps aspect and event type to the points an accepted event is worth.
type Weights map[domain.Aspect]map[string]float64

// DefaultWeights is the server-side weight table. Clients never supply values.
var DefaultWeights = Weights{
	domain.AspectStriking: {
		"JAB":             10,
		"CROSS":           14,
		"HOOK":            14,
		"UPPERCUT":        14,
		"BODY_SHOT":       12,
		"LEG_KICK":        10,
		"BODY_KICK":       14,
		"HEAD_KICK":       22,
		"KNEE":            16,
		"ELBOW":           16,
		"SPINNING_STRIKE": 20,
		"KNOCKDOWN":       60,
		"STRIKE_MISSED":   0,
	},
	domain.AspectGrappling: {
		"TAKEDOWN":           25,
		"TAKEDOWN_ATTEMPT":   5,
		"SUBMISSION_ATTEMPT": 20,
		"REVERSAL":           15,
		"SWEEP":              12,
		"BACK_TAKE":          20,
		"MOUNT":              20,
		"CONTROL_START":      0,
		"CONTROL_STOP":       0,
	},
}

// Lookup returns the weight for an event type under the given aspect.
func (w Weights) Lookup(aspect domain.Aspect, eventType string) (float64, bool) {
	table, ok := w[aspect]
	if !ok {
		return 0, false
	}
	v, ok := table[eventType]
	return v, ok
}
