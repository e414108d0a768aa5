package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/alerting"
	"tradewatch/internal/command"
	"tradewatch/internal/feed"
	"tradewatch/internal/fetcher"
	"tradewatch/internal/metrics"
	"tradewatch/internal/model"
	"tradewatch/internal/scheduler"
)

const notifyTimeout = 10 * time.Second

// ErrNotSettled is returned by WaitSettled when ctx ends before every feed settles.
var ErrNotSettled = errors.New("service: feeds did not settle")

// Source is the engine surface the controller polls and commands.
type Source interface {
	fetcher.SummaryFetcher
	fetcher.PositionsFetcher
	fetcher.HistoryFetcher
	fetcher.LogsFetcher
	fetcher.Poster
}

// Options configure a Controller.
type Options struct {
	Feeds        map[feed.Name]feed.Options
	FetchTimeout time.Duration
	// Metrics and Notifier are optional.
	Metrics  *metrics.Collectors
	Notifier alerting.Notifier
}

// Snapshot is a point-in-time read of the store plus the derived signal.
type Snapshot struct {
	At        time.Time
	Readiness feed.Readiness
	Feeds     map[feed.Name]feed.State
}

// Controller owns the feed store and everything that reads or writes it.
// Controllers never share state with each other.
type Controller struct {
	feeds       []feed.Feed
	store       *feed.Store
	sched       *scheduler.Scheduler
	coordinator *scheduler.Coordinator
	aggregator  *feed.Aggregator
	gateway     *command.Gateway
	metrics     *metrics.Collectors
	notifier    alerting.Notifier
	logger      zerolog.Logger

	mu      sync.Mutex
	last    feed.Readiness
	changed chan struct{}
	ctx     context.Context
	alerted feed.Name
	stopped bool
	notifWG sync.WaitGroup
}

// New wires a controller around src.
func New(src Source, opts Options, logger zerolog.Logger) (*Controller, error) {
	if src == nil {
		return nil, fmt.Errorf("engine source not configured")
	}
	feedOpts := opts.Feeds
	if feedOpts == nil {
		feedOpts = feed.Defaults()
	}
	feeds, err := feed.Build(feedOpts, fetchFuncs(src))
	if err != nil {
		return nil, fmt.Errorf("build feeds: %w", err)
	}

	c := &Controller{
		feeds:      feeds,
		store:      feed.NewStore(),
		aggregator: feed.NewAggregator(feeds),
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		logger:     logger.With().Str("component", "controller").Logger(),
		changed:    make(chan struct{}),
		ctx:        context.Background(),
	}
	c.last = c.aggregator.Compute(c.store)

	schedOpts := scheduler.Options{FetchTimeout: opts.FetchTimeout, OnUpdate: c.onUpdate}
	var refreshRec scheduler.RefreshRecorder
	var commandRec command.Recorder
	if opts.Metrics != nil {
		schedOpts.Recorder = opts.Metrics
		refreshRec = opts.Metrics
		commandRec = opts.Metrics
		opts.Metrics.SetReadiness(c.last)
	}

	c.sched = scheduler.New(c.store, schedOpts, logger)
	c.coordinator = scheduler.NewCoordinator(c.sched, refreshRec, logger)
	c.gateway = command.NewGateway(src, commandRec, logger)
	return c, nil
}

func fetchFuncs(src Source) map[feed.Name]feed.FetchFunc {
	return map[feed.Name]feed.FetchFunc{
		feed.Summary:   func(ctx context.Context) (any, error) { return src.FetchSummary(ctx) },
		feed.Positions: func(ctx context.Context) (any, error) { return src.FetchPositions(ctx) },
		feed.History:   func(ctx context.Context) (any, error) { return src.FetchHistory(ctx) },
		feed.Logs:      func(ctx context.Context) (any, error) { return src.FetchLogs(ctx) },
	}
}

// Start begins polling every feed. Feeds stop when ctx is done or on Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	for _, f := range c.feeds {
		if err := c.sched.Start(ctx, f); err != nil {
			c.sched.StopAll()
			return fmt.Errorf("start feed %s: %w", f.Name, err)
		}
	}
	c.logger.Info().Int("feeds", len(c.feeds)).Msg("controller started")
	return nil
}

// Stop halts every feed and waits for pending notifications.
func (c *Controller) Stop() {
	c.sched.StopAll()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.notifWG.Wait()
	c.logger.Info().Msg("controller stopped")
}

// Store exposes the feed store for read access.
func (c *Controller) Store() *feed.Store {
	return c.store
}

// Readiness derives the signal from the current store contents.
func (c *Controller) Readiness() feed.Readiness {
	return c.aggregator.Compute(c.store)
}

// Snapshot reads every feed and the readiness signal.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		At:        time.Now(),
		Readiness: c.Readiness(),
		Feeds:     c.store.Snapshot(),
	}
}

// RefreshAll fetches every feed that is not already in flight.
func (c *Controller) RefreshAll() []feed.Name {
	return c.coordinator.RefreshAll()
}

// Submit forwards a command to the engine.
func (c *Controller) Submit(ctx context.Context, cmd command.Command) (command.Ack, error) {
	return c.gateway.Submit(ctx, cmd)
}

// WaitSettled blocks until no feed is idle or loading.
func (c *Controller) WaitSettled(ctx context.Context) error {
	for {
		c.mu.Lock()
		changed := c.changed
		c.mu.Unlock()

		if c.settled() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotSettled, ctx.Err())
		case <-changed:
		}
	}
}

func (c *Controller) settled() bool {
	for _, st := range c.store.Snapshot() {
		if st.Status == feed.StatusIdle || st.Status == feed.StatusLoading {
			return false
		}
	}
	return true
}

func (c *Controller) onUpdate(name feed.Name, _ feed.State) {
	c.mu.Lock()
	prev := c.last
	cur := c.aggregator.Compute(c.store)
	c.last = cur
	close(c.changed)
	c.changed = make(chan struct{})
	ctx := c.ctx

	if c.metrics != nil {
		c.metrics.SetReadiness(cur)
	}

	// Alerts latch on the failing feed and clear only once it succeeds again,
	// so a refresh that passes through loading does not flap.
	var note *alerting.Notification
	switch {
	case cur.FatalError && c.alerted == "":
		n := c.notification(alerting.EventFatal, cur.FatalFeed)
		c.logger.Error().Str("feed", cur.FatalFeed.String()).
			Str("kind", n.ErrorKind).
			Str("error", n.ErrorMessage).
			Msg("dashboard fatal")
		c.alerted = cur.FatalFeed
		note = &n
	case !cur.FatalError && c.alerted != "" && c.store.Get(c.alerted).Status == feed.StatusSuccess:
		n := c.notification(alerting.EventRecovered, c.alerted)
		c.logger.Info().Str("feed", c.alerted.String()).Msg("dashboard recovered")
		c.alerted = ""
		note = &n
	}
	if cur.Ready && !prev.Ready {
		c.logger.Info().Str("feed", name.String()).Msg("dashboard ready")
	}
	dispatch := note != nil && c.notifier != nil && !c.stopped
	if dispatch {
		c.notifWG.Add(1)
	}
	c.mu.Unlock()

	if dispatch {
		go c.notify(ctx, *note)
	}
}

func (c *Controller) notification(event alerting.Event, name feed.Name) alerting.Notification {
	note := alerting.Notification{At: time.Now(), Event: event, Feed: name.String()}
	if st := c.store.Get(name); st.LastError != nil {
		note.ErrorKind = string(st.LastError.Kind)
		note.ErrorMessage = st.LastError.Message
	}
	summary := c.store.Get(feed.Summary)
	if s, ok := summary.LastValue.(model.Summary); ok {
		equity := s.CurrentEquity
		note.LastEquity = &equity
		note.LastUpdatedAt = summary.LastUpdatedAt
	}
	return note
}

func (c *Controller) notify(ctx context.Context, note alerting.Notification) {
	defer c.notifWG.Done()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, note); err != nil {
		c.logger.Error().Err(err).Str("event", string(note.Event)).Msg("failed to dispatch alert")
	}
}
