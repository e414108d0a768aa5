package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/model"
	"tradewatch/internal/version"
)

const (
	summaryPath   = "/summary"
	positionsPath = "/positions"
	historyPath   = "/history"
	logsPath      = "/logs"

	defaultBaseURL = "http://localhost:8000/api"
	maxBodyBytes   = 8 << 20
)

// EngineOptions parameterise the trading engine client.
type EngineOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Engine talks to the trading engine's HTTP API.
type Engine struct {
	opts    EngineOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewEngine constructs an engine client.
func NewEngine(opts EngineOptions, logger zerolog.Logger) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Engine{
		opts:    opts,
		logger:  logger.With().Str("component", "engine_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchSummary retrieves GET /summary.
func (e *Engine) FetchSummary(ctx context.Context) (model.Summary, error) {
	var out model.Summary
	if err := e.getJSON(ctx, summaryPath, &out); err != nil {
		return model.Summary{}, err
	}
	return out, nil
}

// FetchPositions retrieves GET /positions. A null body decodes to an empty slice.
func (e *Engine) FetchPositions(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	if err := e.getJSON(ctx, positionsPath, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Position{}
	}
	return out, nil
}

// FetchHistory retrieves GET /history.
func (e *Engine) FetchHistory(ctx context.Context) ([]model.HistoryPoint, error) {
	var out []model.HistoryPoint
	if err := e.getJSON(ctx, historyPath, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.HistoryPoint{}
	}
	return out, nil
}

// FetchLogs retrieves GET /logs.
func (e *Engine) FetchLogs(ctx context.Context) ([]model.LogEntry, error) {
	var out []model.LogEntry
	if err := e.getJSON(ctx, logsPath, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.LogEntry{}
	}
	return out, nil
}

// Post sends an empty-bodied POST and only checks the status code.
func (e *Engine) Post(ctx context.Context, path string, headers map[string]string) error {
	op := "POST " + path
	resp, err := e.do(ctx, http.MethodPost, path, headers)
	if err != nil {
		return networkError(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return networkError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serverError(op, resp.StatusCode, payload)
	}
	return nil
}

func (e *Engine) getJSON(ctx context.Context, path string, out any) error {
	op := "GET " + path
	resp, err := e.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return networkError(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return networkError(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return serverError(op, resp.StatusCode, payload)
	}

	if len(strings.TrimSpace(string(payload))) == 0 {
		return decodeError(op, errors.New("empty response body"))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return decodeError(op, err)
	}
	return nil
}

func (e *Engine) do(ctx context.Context, method, path string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	e.logger.Debug().Str("method", method).Str("path", path).Msg("engine request")
	return e.client.Do(req)
}

var (
	_ SummaryFetcher   = (*Engine)(nil)
	_ PositionsFetcher = (*Engine)(nil)
	_ HistoryFetcher   = (*Engine)(nil)
	_ LogsFetcher      = (*Engine)(nil)
	_ Poster           = (*Engine)(nil)
)
