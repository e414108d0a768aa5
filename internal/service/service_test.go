package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewatch/internal/alerting"
	"tradewatch/internal/command"
	"tradewatch/internal/feed"
	"tradewatch/internal/fetcher"
	"tradewatch/internal/metrics"
	"tradewatch/internal/model"
)

const summaryJSON = `{"current_equity":104.5,"usdt_balance":50,"total_pnl_pct":4.5,"fluctuation":"+0.3%","active_positions":0,"updated_at":"12:00:00"}`

type fakeEngine struct {
	summaryDown atomic.Bool
	sells       atomic.Int32
}

func (f *fakeEngine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		if f.summaryDown.Load() {
			http.Error(w, `{"detail":"engine offline"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(summaryJSON))
	})
	for _, path := range []string{"/positions", "/history", "/logs"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
	}
	mux.HandleFunc("/trade/sell/", func(w http.ResponseWriter, r *http.Request) {
		f.sells.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) events() []alerting.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]alerting.Event, len(n.notes))
	for i, note := range n.notes {
		out[i] = note.Event
	}
	return out
}

// slowFeeds keeps timers out of the way so only the immediate first fetch and
// manual refreshes run during a test.
func slowFeeds() map[feed.Name]feed.Options {
	opts := feed.Defaults()
	for name, o := range opts {
		o.Interval = time.Minute
		opts[name] = o
	}
	return opts
}

func newController(t *testing.T, engine *fakeEngine, notifier alerting.Notifier) *Controller {
	t.Helper()
	srv := httptest.NewServer(engine.handler())
	t.Cleanup(srv.Close)

	src := fetcher.NewEngine(fetcher.EngineOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	c, err := New(src, Options{Feeds: slowFeeds(), Metrics: metrics.New(), Notifier: notifier}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func waitSettled(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitSettled(ctx))
}

func TestControllerBecomesReady(t *testing.T) {
	c := newController(t, &fakeEngine{}, nil)

	before := c.Readiness()
	assert.False(t, before.Ready)
	assert.True(t, before.Loading)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	waitSettled(t, c)

	r := c.Readiness()
	assert.True(t, r.Ready)
	assert.False(t, r.FatalError)
	assert.False(t, r.Loading)

	snap := c.Snapshot()
	summary, ok := snap.Feeds[feed.Summary].LastValue.(model.Summary)
	require.True(t, ok, "summary value should be typed")
	assert.Equal(t, "12:00:00", summary.UpdatedAt)
	assert.Equal(t, "104.5", summary.CurrentEquity.String())

	positions, ok := snap.Feeds[feed.Positions].LastValue.([]model.Position)
	require.True(t, ok)
	assert.Empty(t, positions)
}

func TestControllerFatalAndRecovery(t *testing.T) {
	engine := &fakeEngine{}
	engine.summaryDown.Store(true)
	notifier := &recordingNotifier{}
	c := newController(t, engine, notifier)

	require.NoError(t, c.Start(context.Background()))
	waitSettled(t, c)

	r := c.Readiness()
	assert.True(t, r.FatalError)
	assert.Equal(t, feed.Summary, r.FatalFeed)
	assert.False(t, r.Ready)
	assert.False(t, r.Loading)

	st := c.Store().Get(feed.Summary)
	require.NotNil(t, st.LastError)
	assert.Equal(t, feed.ServerError, st.LastError.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, st.LastError.StatusCode)

	// the settled state is stored before the fetch releases its in-flight slot
	require.Eventually(t, func() bool { return !c.sched.InFlight(feed.Summary) }, time.Second, 5*time.Millisecond)

	engine.summaryDown.Store(false)
	started := c.RefreshAll()
	assert.Contains(t, started, feed.Summary)
	waitSettled(t, c)

	r = c.Readiness()
	assert.True(t, r.Ready)
	assert.False(t, r.FatalError)

	require.Eventually(t, func() bool { return len(notifier.events()) == 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	assert.Equal(t, []alerting.Event{alerting.EventFatal, alerting.EventRecovered}, notifier.events())
}

func TestControllerKeepsReadinessOnSecondaryFailure(t *testing.T) {
	engine := &fakeEngine{}
	c := newController(t, engine, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	waitSettled(t, c)
	require.True(t, c.Readiness().Ready)

	// positions is not fatal: a failure there degrades but never revokes readiness
	failed := c.Store().Get(feed.Positions).Failed(&feed.ErrorInfo{Kind: feed.NetworkError, Message: "timeout"})
	require.NoError(t, c.Store().Set(feed.Positions, failed))

	r := c.Readiness()
	assert.True(t, r.Ready)
	assert.False(t, r.FatalError)
}

func TestControllerSubmit(t *testing.T) {
	engine := &fakeEngine{}
	c := newController(t, engine, nil)

	ack, err := c.Submit(context.Background(), command.Sell{Symbol: "btc/usdt"})
	require.NoError(t, err)
	assert.Equal(t, "/trade/sell/BTC%2FUSDT", ack.Path)
	assert.NotEmpty(t, ack.RequestID)
	assert.EqualValues(t, 1, engine.sells.Load())

	_, err = c.Submit(context.Background(), command.Sell{Symbol: "  "})
	require.ErrorIs(t, err, command.ErrInvalidCommand)
	assert.EqualValues(t, 1, engine.sells.Load())
}

func TestWaitSettledTimesOut(t *testing.T) {
	c := newController(t, &fakeEngine{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.WaitSettled(ctx)
	require.ErrorIs(t, err, ErrNotSettled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(nil, Options{}, zerolog.Nop())
	require.Error(t, err)
}
