// Package command submits one-shot actions to the trading engine.
//
// Submissions are fire-and-forget: the gateway does not retry, does not touch
// the feed store, and does not wait for the action to take effect. A closed
// position shows up on the next positions poll.
package command

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradewatch/internal/fetcher"
)

// ErrInvalidCommand is returned for commands that fail validation. No request is sent.
var ErrInvalidCommand = errors.New("command: invalid command")

// Command is an action the engine can execute.
type Command interface {
	Action() string
	Path() string
	Validate() error
}

// Sell closes the position held in Symbol.
type Sell struct {
	Symbol string
}

// Action names the command for logs and metrics.
func (Sell) Action() string { return "sell" }

// Path returns the engine endpoint.
func (s Sell) Path() string {
	return "/trade/sell/" + url.PathEscape(normalizeSymbol(s.Symbol))
}

// Validate rejects empty symbols.
func (s Sell) Validate() error {
	if normalizeSymbol(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidCommand)
	}
	return nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Ack confirms the engine accepted a command.
type Ack struct {
	RequestID   string
	Action      string
	Path        string
	SubmittedAt time.Time
}

// Recorder counts submissions.
type Recorder interface {
	ObserveCommand(action string, err error)
}

// Gateway posts commands to the engine.
type Gateway struct {
	poster   fetcher.Poster
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGateway constructs a command gateway. recorder may be nil.
func NewGateway(poster fetcher.Poster, recorder Recorder, logger zerolog.Logger) *Gateway {
	return &Gateway{
		poster:   poster,
		recorder: recorder,
		logger:   logger.With().Str("component", "command_gateway").Logger(),
		now:      time.Now,
	}
}

// Submit sends cmd once. Failures are returned to the caller and never retried.
func (g *Gateway) Submit(ctx context.Context, cmd Command) (Ack, error) {
	if cmd == nil {
		return Ack{}, fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return Ack{}, err
	}

	ack := Ack{
		RequestID:   uuid.NewString(),
		Action:      cmd.Action(),
		Path:        cmd.Path(),
		SubmittedAt: g.now().UTC(),
	}

	err := g.poster.Post(ctx, ack.Path, map[string]string{"X-Request-ID": ack.RequestID})
	if g.recorder != nil {
		g.recorder.ObserveCommand(ack.Action, err)
	}
	if err != nil {
		g.logger.Error().Err(err).
			Str("action", ack.Action).
			Str("path", ack.Path).
			Str("request_id", ack.RequestID).
			Msg("command rejected")
		return Ack{}, fmt.Errorf("submit %s: %w", ack.Action, err)
	}

	g.logger.Info().
		Str("action", ack.Action).
		Str("path", ack.Path).
		Str("request_id", ack.RequestID).
		Msg("command submitted")
	return ack, nil
}
