package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Name identifies one independently scheduled data source.
type Name string

const (
	Summary   Name = "summary"
	Positions Name = "positions"
	History   Name = "history"
	Logs      Name = "logs"
)

// Names lists every feed in display order.
var Names = []Name{Summary, Positions, History, Logs}

// ErrUnknownFeed is returned when a feed name is not part of the fixed set.
var ErrUnknownFeed = errors.New("feed: unknown feed")

// FetchFunc retrieves the latest payload for a feed.
type FetchFunc func(ctx context.Context) (any, error)

// Feed describes a data source and how it is polled.
type Feed struct {
	Name         Name
	Interval     time.Duration
	FatalOnError bool
	// BlocksReadiness marks feeds that must succeed once before the dashboard is usable.
	BlocksReadiness bool
	Fetch           FetchFunc
}

// Validate checks that the feed can be scheduled.
func (f Feed) Validate() error {
	if !f.Name.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFeed, f.Name)
	}
	if f.Interval <= 0 {
		return fmt.Errorf("feed %s: interval must be greater than zero", f.Name)
	}
	if f.Fetch == nil {
		return fmt.Errorf("feed %s: fetch function is required", f.Name)
	}
	return nil
}

// Valid reports whether n is one of the known feeds.
func (n Name) Valid() bool {
	switch n {
	case Summary, Positions, History, Logs:
		return true
	}
	return false
}

func (n Name) String() string { return string(n) }

// Options carries per-feed scheduling settings.
type Options struct {
	Interval     time.Duration
	FatalOnError bool
}

// Defaults returns the stock polling cadence for every feed.
func Defaults() map[Name]Options {
	return map[Name]Options{
		Summary:   {Interval: 5 * time.Second, FatalOnError: true},
		Positions: {Interval: 2 * time.Second},
		History:   {Interval: 60 * time.Second},
		Logs:      {Interval: 2 * time.Second},
	}
}

// Build assembles feed definitions from options and fetch functions.
// Summary and positions gate readiness; history and logs never do.
func Build(opts map[Name]Options, fetchers map[Name]FetchFunc) ([]Feed, error) {
	feeds := make([]Feed, 0, len(Names))
	for _, name := range Names {
		o, ok := opts[name]
		if !ok {
			return nil, fmt.Errorf("feed %s: options missing", name)
		}
		f := Feed{
			Name:            name,
			Interval:        o.Interval,
			FatalOnError:    o.FatalOnError,
			BlocksReadiness: name == Summary || name == Positions,
			Fetch:           fetchers[name],
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}
