package scheduler

import (
	"github.com/rs/zerolog"

	"tradewatch/internal/feed"
)

// RefreshRecorder counts manual refresh requests.
type RefreshRecorder interface {
	ManualRefresh()
}

// Coordinator fetches every feed on demand, independent of timer phase.
type Coordinator struct {
	sched    *Scheduler
	recorder RefreshRecorder
	logger   zerolog.Logger
}

// NewCoordinator wraps a scheduler. recorder may be nil.
func NewCoordinator(sched *Scheduler, recorder RefreshRecorder, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		sched:    sched,
		recorder: recorder,
		logger:   logger.With().Str("component", "refresh").Logger(),
	}
}

// RefreshAll starts a fetch for every running feed that is not already in
// flight and restarts that feed's timer. Feeds with an outstanding fetch are
// left alone. It returns the feeds whose fetch was initiated.
func (c *Coordinator) RefreshAll() []feed.Name {
	if c.recorder != nil {
		c.recorder.ManualRefresh()
	}

	var started, busy []feed.Name
	for _, name := range c.sched.Running() {
		ok, err := c.sched.Trigger(name)
		if err != nil {
			// stopped between Running and Trigger
			continue
		}
		if ok {
			started = append(started, name)
		} else {
			busy = append(busy, name)
		}
	}

	c.logger.Info().
		Strs("refreshed", names(started)).
		Strs("in_flight", names(busy)).
		Msg("manual refresh")
	return started
}

func names(in []feed.Name) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = n.String()
	}
	return out
}
