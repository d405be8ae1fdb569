package suggest

import (
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Weights weight the matcher's component scores. They need not sum to one.
type Weights struct {
	Duration float64
	Due      float64
	Source   float64
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	Weights Weights
	// DefaultEstimate is assumed for tasks without an estimate.
	DefaultEstimate time.Duration
	// DueHorizon is the distance to due at which due proximity reaches zero.
	DueHorizon time.Duration
	// SourcePriorities maps a window source to a priority in [0,1].
	SourcePriorities map[string]float64
	// DefaultPriority applies to sources missing from SourcePriorities.
	DefaultPriority float64
}

// DefaultMatcherConfig returns the defaults used when nothing is configured.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Weights:         Weights{Duration: 0.4, Due: 0.4, Source: 0.2},
		DefaultEstimate: 30 * time.Minute,
		DueHorizon:      7 * 24 * time.Hour,
		DefaultPriority: 0.5,
	}
}

// Matcher scores how well a task fits an availability window.
// It is pure: the same inputs always produce the same score.
type Matcher struct {
	cfg MatcherConfig
}

// NewMatcher creates a matcher. Negative weights are treated as zero and
// all-zero weights as equal weights.
func NewMatcher(cfg MatcherConfig) *Matcher {
	w := &cfg.Weights
	w.Duration = max(w.Duration, 0)
	w.Due = max(w.Due, 0)
	w.Source = max(w.Source, 0)
	if w.Duration+w.Due+w.Source == 0 {
		*w = Weights{Duration: 1, Due: 1, Source: 1}
	}
	if cfg.DueHorizon <= 0 {
		cfg.DueHorizon = DefaultMatcherConfig().DueHorizon
	}
	return &Matcher{cfg: cfg}
}

// Score returns a fit in [0,1], or false when the task cannot be done in the
// window: its estimate exceeds the part of the window still ahead of now.
func (m *Matcher) Score(task *models.Task, w models.AvailabilityWindow, now time.Time) (float64, bool) {
	start := w.Start
	if now.After(start) {
		start = now
	}
	usable := w.End.Sub(start)
	if usable <= 0 {
		return 0, false
	}

	estimate := task.EstimatedDuration
	if estimate <= 0 {
		estimate = m.cfg.DefaultEstimate
	}
	if estimate > usable {
		return 0, false
	}

	durationFit := 1.0
	if estimate > 0 {
		durationFit = float64(estimate) / float64(usable)
	}

	weights := m.cfg.Weights
	total := weights.Duration*durationFit +
		weights.Due*m.dueProximity(task, now) +
		weights.Source*m.sourcePriority(w.Source)
	return clamp01(total / (weights.Duration + weights.Due + weights.Source)), true
}

// dueProximity is 1 when overdue, falls linearly to 0 at DueHorizon, and is
// 0 without a due date. It never increases as the due date moves away.
func (m *Matcher) dueProximity(task *models.Task, now time.Time) float64 {
	if task.Due == nil {
		return 0
	}
	until := task.Due.Sub(now)
	if until <= 0 {
		return 1
	}
	return clamp01(1 - float64(until)/float64(m.cfg.DueHorizon))
}

func (m *Matcher) sourcePriority(source string) float64 {
	if p, ok := m.cfg.SourcePriorities[source]; ok {
		return clamp01(p)
	}
	return clamp01(m.cfg.DefaultPriority)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
