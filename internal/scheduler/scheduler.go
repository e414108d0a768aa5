package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/feed"
)

var (
	// ErrAlreadyStarted is returned when a feed is started twice.
	ErrAlreadyStarted = errors.New("scheduler: feed already started")
	// ErrNotStarted is returned when a feed has no running cycle.
	ErrNotStarted = errors.New("scheduler: feed not started")
)

// Recorder receives polling events.
type Recorder interface {
	ObserveFetch(name feed.Name, err error, took time.Duration)
	TickSkipped(name feed.Name)
	ResultDiscarded(name feed.Name)
	SetState(name feed.Name, st feed.State)
}

// UpdateFunc is called after every store write for a feed.
type UpdateFunc func(name feed.Name, st feed.State)

// Options tune scheduler behaviour.
type Options struct {
	// FetchTimeout bounds each fetch. Zero leaves the fetch unbounded.
	FetchTimeout time.Duration
	Recorder     Recorder
	OnUpdate     UpdateFunc
	Now          func() time.Time
}

// Scheduler runs one repeating cycle per feed and writes results into the store.
// A feed never has more than one fetch in flight; ticks that find a fetch
// outstanding are dropped rather than queued.
type Scheduler struct {
	store  *feed.Store
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	runners map[feed.Name]*runner
	wg      sync.WaitGroup
}

type runner struct {
	feed   feed.Feed
	ctx    context.Context
	reset  chan struct{}
	stopCh chan struct{}
	once   sync.Once

	inFlight atomic.Bool

	// mu orders store writes against stop so nothing lands after halt returns.
	mu      sync.Mutex
	stopped bool
}

// New constructs a Scheduler writing into store.
func New(store *feed.Store, opts Options, logger zerolog.Logger) *Scheduler {
	if store == nil {
		panic("scheduler store must not be nil")
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		runners: make(map[feed.Name]*runner),
	}
}

// Start fetches f immediately and then every f.Interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context, f feed.Feed) error {
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runners[f.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, f.Name)
	}

	r := &runner{
		feed:   f,
		ctx:    ctx,
		reset:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	s.runners[f.Name] = r

	s.wg.Add(1)
	go s.loop(r)

	s.logger.Info().Str("feed", f.Name.String()).Dur("interval", f.Interval).Msg("feed started")
	return nil
}

// Stop cancels the cycle of one feed. A fetch still in flight is not aborted,
// but its result is discarded.
func (s *Scheduler) Stop(name feed.Name) error {
	s.mu.Lock()
	r, ok := s.runners[name]
	if ok {
		delete(s.runners, name)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotStarted, name)
	}
	r.halt()
	s.logger.Info().Str("feed", name.String()).Msg("feed stopped")
	return nil
}

// StopAll stops every feed and waits for the timer loops to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	runners := s.runners
	s.runners = make(map[feed.Name]*runner)
	s.mu.Unlock()

	for _, r := range runners {
		r.halt()
	}
	s.wg.Wait()
}

// Trigger initiates an out-of-band fetch of a feed and restarts its timer.
// It reports false when a fetch for the feed was already in flight.
func (s *Scheduler) Trigger(name feed.Name) (bool, error) {
	s.mu.Lock()
	r, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotStarted, name)
	}

	if !s.tick(r) {
		return false, nil
	}
	select {
	case r.reset <- struct{}{}:
	default:
	}
	return true, nil
}

// Running lists the feeds with an active cycle.
func (s *Scheduler) Running() []feed.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]feed.Name, 0, len(s.runners))
	for _, name := range feed.Names {
		if _, ok := s.runners[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// InFlight reports whether a fetch for name is outstanding.
func (s *Scheduler) InFlight(name feed.Name) bool {
	s.mu.Lock()
	r, ok := s.runners[name]
	s.mu.Unlock()
	return ok && r.inFlight.Load()
}

func (s *Scheduler) loop(r *runner) {
	defer s.wg.Done()
	defer r.halt()

	s.tick(r)

	timer := time.NewTimer(r.feed.Interval)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-r.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.feed.Interval)
		case <-timer.C:
			s.tick(r)
			timer.Reset(r.feed.Interval)
		}
	}
}

// tick starts a fetch unless one is already in flight.
func (s *Scheduler) tick(r *runner) bool {
	name := r.feed.Name
	if !r.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Str("feed", name.String()).Msg("fetch in flight; skipping tick")
		s.opts.Recorder.TickSkipped(name)
		return false
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.inFlight.Store(false)
		return false
	}
	st := s.store.Get(name).Loading()
	_ = s.store.Set(name, st)
	r.mu.Unlock()

	s.publish(name, st)
	go s.fetch(r)
	return true
}

func (s *Scheduler) fetch(r *runner) {
	defer r.inFlight.Store(false)
	name := r.feed.Name

	ctx := context.WithoutCancel(r.ctx)
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := r.feed.Fetch(ctx)
	took := time.Since(start)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		s.logger.Debug().Str("feed", name.String()).Msg("discarding result of stopped feed")
		s.opts.Recorder.ResultDiscarded(name)
		return
	}
	prev := s.store.Get(name)
	var next feed.State
	if err != nil {
		next = prev.Failed(feed.Classify(err, s.opts.Now()))
	} else {
		next = prev.Succeeded(value, s.opts.Now())
	}
	_ = s.store.Set(name, next)
	r.mu.Unlock()

	s.opts.Recorder.ObserveFetch(name, err, took)
	if err != nil {
		s.logger.Warn().Err(err).Str("feed", name.String()).
			Str("kind", string(next.LastError.Kind)).
			Msg("fetch failed; keeping last value")
	} else {
		s.logger.Debug().Str("feed", name.String()).Dur("took", took).Msg("fetch succeeded")
	}
	s.publish(name, next)
}

func (s *Scheduler) publish(name feed.Name, st feed.State) {
	s.opts.Recorder.SetState(name, st)
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(name, st)
	}
}

func (r *runner) halt() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.once.Do(func() { close(r.stopCh) })
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(feed.Name, error, time.Duration) {}
func (nopRecorder) TickSkipped(feed.Name) {}
func (nopRecorder) ResultDiscarded(feed.Name) {}
func (nopRecorder) SetState(feed.Name, feed.State) {}
