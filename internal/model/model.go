package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EngineTimeLayout is the timestamp format written by the trading engine.
const EngineTimeLayout = "2006-01-02 15:04:05"

// Summary carries wallet and KPI figures.
type Summary struct {
	CurrentEquity decimal.Decimal `json:"current_equity"`
	CashBalance   decimal.Decimal `json:"usdt_balance"`
	TotalPnLPct   decimal.Decimal `json:"total_pnl_pct"`
	Fluctuation   string          `json:"fluctuation"`
	OpenPositions int             `json:"active_positions"`
	UpdatedAt     string          `json:"updated_at"`
}

// Position is one open position with live valuation fields.
type Position struct {
	Symbol       string           `json:"symbol"`
	AmountUSDT   decimal.Decimal  `json:"amount_usdt"`
	BuyPrice     decimal.Decimal  `json:"buy_price"`
	HighestPrice decimal.Decimal  `json:"highest_price"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	PnLPct       *decimal.Decimal `json:"pnl_pct,omitempty"`
	RSIAtEntry   decimal.Decimal  `json:"rsi_at_entry"`
	EntryTime    string           `json:"entry_time"`
}

var hundred = decimal.NewFromInt(100)

// EstimatedPnLPct returns the reported PnL, or the trailing-top estimate
// (highest-buy)/buy*100 when the engine omitted it.
func (p Position) EstimatedPnLPct() decimal.Decimal {
	if p.PnLPct != nil {
		return *p.PnLPct
	}
	if p.BuyPrice.IsZero() {
		return decimal.Zero
	}
	return p.HighestPrice.Sub(p.BuyPrice).Div(p.BuyPrice).Mul(hundred).Round(2)
}

// Exposure sums the invested amount across positions.
func Exposure(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.AmountUSDT)
	}
	return total
}

// HistoryPoint is one sample of the equity curve.
type HistoryPoint struct {
	Timestamp   Timestamp       `json:"timestamp"`
	Equity      decimal.Decimal `json:"equity"`
	Fluctuation string          `json:"fluctuation,omitempty"`
}

// Level is the severity of a LogEntry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelSuccess Level = "SUCCESS"
)

// UnmarshalJSON accepts levels in any case and WARN as an alias of WARNING.
func (l *Level) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := Level(strings.ToUpper(strings.TrimSpace(raw))); v {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		*l = v
	case "WARN":
		*l = LevelWarning
	default:
		return fmt.Errorf("unknown log level %q", raw)
	}
	return nil
}

// LogEntry is one line of the engine's event log.
type LogEntry struct {
	Timestamp Timestamp `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Timestamp decodes either the engine layout or RFC3339. The engine layout
// carries no zone and is read as local time.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses a quoted timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{EngineTimeLayout, time.RFC3339Nano} {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// MarshalJSON writes the engine layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(EngineTimeLayout))
}

// Clock returns the HH:MM:SS part used by compact views.
func (t Timestamp) Clock() string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Format("15:04:05")
}
