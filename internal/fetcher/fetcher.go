package fetcher

import (
	"context"

	"tradewatch/internal/model"
)

// SummaryFetcher retrieves wallet and KPI figures.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context) (model.Summary, error)
}

// PositionsFetcher retrieves the open positions.
type PositionsFetcher interface {
	FetchPositions(ctx context.Context) ([]model.Position, error)
}

// HistoryFetcher retrieves the equity curve.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context) ([]model.HistoryPoint, error)
}

// LogsFetcher retrieves the engine event log, oldest first.
type LogsFetcher interface {
	FetchLogs(ctx context.Context) ([]model.LogEntry, error)
}

// Poster issues commands without consuming a response body.
type Poster interface {
	Post(ctx context.Context, path string, headers map[string]string) error
}
