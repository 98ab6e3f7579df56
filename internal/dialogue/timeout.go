package dialogue

import (
	"strings"
	"time"
)

// EstimateTimeout guesses how long the partner needs to answer content.
// Longer prompts earn more time, urgency markers cut it, and words that
// suggest real work double it. The result is clamped to [30s, 30m].
func EstimateTimeout(content string) time.Duration {
	base := 60 * time.Second

	factor := len(content) / 100
	if factor > 5 {
		factor = 5
	}
	est := base + time.Duration(factor)*time.Minute

	lower := strings.ToLower(content)
	for _, kw := range []string{"urgent", "asap"} {
		if strings.Contains(lower, kw) {
			est /= 2
			break
		}
	}
	for _, kw := range []string{"analyze", "design", "implement", "research"} {
		if strings.Contains(lower, kw) {
			est *= 2
			break
		}
	}

	if est < 30*time.Second {
		est = 30 * time.Second
	}
	if est > 30*time.Minute {
		est = 30 * time.Minute
	}
	return est
}
