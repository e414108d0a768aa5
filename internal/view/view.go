// Package view renders dashboard snapshots as plain terminal text.
package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"tradewatch/internal/feed"
	"tradewatch/internal/model"
	"tradewatch/internal/service"
)

const (
	Title          = "DEX V2 Dashboard"
	LoadingText    = "Loading Dashboard..."
	FatalText      = "Error connecting to API. Is the backend running?"
	NoHistoryText  = "No history data available"
	NoLogsText     = "Waiting for system logs..."
	NoPositionText = "No open positions"
)

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// Options tune what the renderer shows.
type Options struct {
	// LogLines caps the log section. Zero shows every entry.
	LogLines int
	// HistoryWindow limits history stats to recent points. Zero keeps all.
	HistoryWindow time.Duration
	// SparkWidth is the number of glyphs in the equity sparkline.
	SparkWidth int
}

// Render writes one frame for snap. A fatal error takes precedence over loading.
func Render(w io.Writer, snap service.Snapshot, opts Options) error {
	switch {
	case snap.Readiness.FatalError:
		return renderFatal(w, snap)
	case !snap.Readiness.Ready:
		_, err := fmt.Fprintln(w, LoadingText)
		return err
	}

	summary, _ := snap.Feeds[feed.Summary].LastValue.(model.Summary)
	positions, _ := snap.Feeds[feed.Positions].LastValue.([]model.Position)
	history, _ := snap.Feeds[feed.History].LastValue.([]model.HistoryPoint)
	logs, _ := snap.Feeds[feed.Logs].LastValue.([]model.LogEntry)

	var b strings.Builder
	fmt.Fprintln(&b, Title)
	fmt.Fprintf(&b, "System Operational | Last Update: %s\n", summary.UpdatedAt)
	writeDegraded(&b, snap)
	fmt.Fprintln(&b)

	if err := writeKPIs(&b, summary, positions); err != nil {
		return err
	}
	fmt.Fprintln(&b)
	writeHistory(&b, history, snap.At, opts)
	fmt.Fprintln(&b)
	writeLogs(&b, logs, opts.LogLines)
	fmt.Fprintln(&b)
	if err := writePositions(&b, positions); err != nil {
		return err
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderFatal(w io.Writer, snap service.Snapshot) error {
	var b strings.Builder
	fmt.Fprintln(&b, FatalText)
	if st := snap.Feeds[snap.Readiness.FatalFeed]; st.LastError != nil {
		fmt.Fprintf(&b, "%s: %s\n", snap.Readiness.FatalFeed, sanitizeInline(st.LastError.Error()))
		if st.HasValue() {
			fmt.Fprintf(&b, "last good data: %s\n", st.LastUpdatedAt.Format(time.TimeOnly))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeDegraded lists feeds whose last fetch failed while older data is still shown.
func writeDegraded(b *strings.Builder, snap service.Snapshot) {
	for _, name := range feed.Names {
		st := snap.Feeds[name]
		if st.Status != feed.StatusError || st.LastError == nil {
			continue
		}
		age := "never loaded"
		if st.HasValue() {
			age = "data from " + st.LastUpdatedAt.Format(time.TimeOnly)
		}
		fmt.Fprintf(b, "! %s stale (%s): %s\n", name, age, sanitizeInline(st.LastError.Message))
	}
}

func writeKPIs(b *strings.Builder, s model.Summary, positions []model.Position) error {
	tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Equity\tCash\tTotal PnL\tFluctuation\tPositions\tExposure")
	fmt.Fprintf(tw, "$%s\t$%s\t%s\t%s\t%d\t$%s\n",
		s.CurrentEquity.StringFixed(2),
		s.CashBalance.StringFixed(2),
		signedPct(s.TotalPnLPct),
		dash(s.Fluctuation),
		s.OpenPositions,
		model.Exposure(positions).StringFixed(2),
	)
	return tw.Flush()
}

func writeHistory(b *strings.Builder, history []model.HistoryPoint, now time.Time, opts Options) {
	fmt.Fprintln(b, "Equity Curve")
	points := windowed(history, now, opts.HistoryWindow)
	if len(points) == 0 {
		fmt.Fprintln(b, NoHistoryText)
		return
	}

	low, high := points[0].Equity, points[0].Equity
	for _, p := range points[1:] {
		low = decimal.Min(low, p.Equity)
		high = decimal.Max(high, p.Equity)
	}
	first, last := points[0], points[len(points)-1]
	change := decimal.Zero
	if !first.Equity.IsZero() {
		change = last.Equity.Sub(first.Equity).Div(first.Equity).Mul(decimal.NewFromInt(100))
	}

	width := opts.SparkWidth
	if width <= 0 {
		width = 48
	}
	fmt.Fprintln(b, Sparkline(points, width))
	fmt.Fprintf(b, "%d points  %s .. %s  low $%s  high $%s  change %s\n",
		len(points), first.Timestamp.Clock(), last.Timestamp.Clock(),
		low.StringFixed(2), high.StringFixed(2), signedPct(change))
}

func windowed(history []model.HistoryPoint, now time.Time, window time.Duration) []model.HistoryPoint {
	if window <= 0 || now.IsZero() {
		return history
	}
	cutoff := now.Add(-window)
	for i, p := range history {
		if p.Timestamp.IsZero() || !p.Timestamp.Before(cutoff) {
			return history[i:]
		}
	}
	return nil
}

// Sparkline scales equity into width glyphs, sampling evenly when there are
// more points than glyphs.
func Sparkline(points []model.HistoryPoint, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	n := min(width, len(points))
	values := make([]float64, n)
	for i := range values {
		idx := i
		if n > 1 {
			idx = i * (len(points) - 1) / (n - 1)
		}
		values[i] = points[idx].Equity.InexactFloat64()
	}

	low, high := values[0], values[0]
	for _, v := range values {
		low = min(low, v)
		high = max(high, v)
	}
	top := len(sparkTicks) - 1

	var b strings.Builder
	for _, v := range values {
		level := 0
		if high > low {
			level = int((v - low) / (high - low) * float64(top))
		}
		b.WriteRune(sparkTicks[level])
	}
	return b.String()
}

func writeLogs(b *strings.Builder, logs []model.LogEntry, limit int) {
	fmt.Fprintln(b, "System Terminal")
	if len(logs) == 0 {
		fmt.Fprintln(b, NoLogsText)
		return
	}
	for _, entry := range NewestFirst(logs, limit) {
		fmt.Fprintf(b, "[%s] %-7s %s\n", entry.Timestamp.Clock(), entry.Level, sanitizeInline(entry.Message))
	}
}

// NewestFirst returns up to limit entries in reverse chronological order
// without modifying logs. A non-positive limit returns every entry.
func NewestFirst(logs []model.LogEntry, limit int) []model.LogEntry {
	n := len(logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.LogEntry, 0, n)
	for i := len(logs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, logs[i])
	}
	return out
}

func writePositions(b *strings.Builder, positions []model.Position) error {
	fmt.Fprintln(b, "Active Positions")
	if len(positions) == 0 {
		fmt.Fprintln(b, NoPositionText)
		return nil
	}

	tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tAmount\tBuy\tCurrent\tHighest\tPnL%\tRSI\tEntry")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t$%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol,
			p.AmountUSDT.StringFixed(2),
			formatPrice(p.BuyPrice),
			formatPrice(p.CurrentPrice),
			formatPrice(p.HighestPrice),
			signedPct(p.EstimatedPnLPct()),
			p.RSIAtEntry.StringFixed(1),
			dash(p.EntryTime),
		)
	}
	return tw.Flush()
}

func formatPrice(d decimal.Decimal) string {
	if d.IsZero() {
		return "-"
	}
	// sub-cent tokens need more places
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return d.StringFixed(6)
	}
	return d.StringFixed(4)
}

func signedPct(d decimal.Decimal) string {
	s := d.StringFixed(2) + "%"
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
