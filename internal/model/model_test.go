package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSummary(t *testing.T) {
	var s Summary
	err := json.Unmarshal([]byte(`{"current_equity": 104.25, "usdt_balance": "20.5", "total_pnl_pct": 4.25, "active_positions": 3, "updated_at": "12:00:00"}`), &s)
	require.NoError(t, err)
	assert.True(t, s.CurrentEquity.Equal(decimal.RequireFromString("104.25")))
	assert.True(t, s.CashBalance.Equal(decimal.RequireFromString("20.5")))
	assert.Equal(t, 3, s.OpenPositions)
	assert.Equal(t, "12:00:00", s.UpdatedAt)
}

func TestPositionPnL(t *testing.T) {
	p := Position{BuyPrice: decimal.NewFromInt(100), HighestPrice: decimal.NewFromInt(110)}
	assert.Equal(t, "10", p.EstimatedPnLPct().String())

	reported := decimal.RequireFromString("-2.5")
	p.PnLPct = &reported
	assert.Equal(t, "-2.5", p.EstimatedPnLPct().String())

	assert.True(t, Position{}.EstimatedPnLPct().IsZero())
}

func TestExposure(t *testing.T) {
	positions := []Position{
		{Symbol: "BTCUSDT", AmountUSDT: decimal.RequireFromString("12.5")},
		{Symbol: "ETHUSDT", AmountUSDT: decimal.RequireFromString("7.5")},
	}
	assert.Equal(t, "20", Exposure(positions).String())
	assert.True(t, Exposure(nil).IsZero())
}

func TestDecodeLogEntries(t *testing.T) {
	var logs []LogEntry
	payload := `[
		{"timestamp": "2024-05-01 09:00:00", "level": "info", "message": "scanner started"},
		{"timestamp": "2024-05-01T09:00:05Z", "level": "WARN", "message": "rate limited"},
		{"timestamp": "2024-05-01 09:00:06.123456", "level": "SUCCESS", "message": "bought BTCUSDT"}
	]`
	require.NoError(t, json.Unmarshal([]byte(payload), &logs))
	require.Len(t, logs, 3)
	assert.Equal(t, LevelInfo, logs[0].Level)
	assert.Equal(t, LevelWarning, logs[1].Level)
	assert.Equal(t, LevelSuccess, logs[2].Level)
	assert.Equal(t, "09:00:00", logs[0].Timestamp.Clock())
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 5, 0, time.UTC), logs[1].Timestamp.Time)
}

func TestDecodeRejectsUnknownLevel(t *testing.T) {
	var entry LogEntry
	err := json.Unmarshal([]byte(`{"timestamp": "2024-05-01 09:00:00", "level": "DEBUG", "message": "x"}`), &entry)
	require.Error(t, err)
}

func TestDecodeRejectsBadTimestamp(t *testing.T) {
	var point HistoryPoint
	err := json.Unmarshal([]byte(`{"timestamp": "yesterday", "equity": 10}`), &point)
	require.Error(t, err)
}

func TestTimestampMarshal(t *testing.T) {
	ts := Timestamp{Time: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01 09:00:00"`, string(out))
	assert.Equal(t, "--:--:--", Timestamp{}.Clock())
}
