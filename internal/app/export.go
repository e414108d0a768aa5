package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tradewatch/internal/model"
)

// Export fetches the equity history once and writes it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	history, err := a.newEngine().FetchHistory(ctx)
	if err != nil {
		return err
	}

	points := filterHistory(history, opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Msg("no history points found for export window")
		return nil
	}

	downsampled := downsampleHistory(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// filterHistory keeps points in [from, to). Points without a timestamp are kept.
func filterHistory(points []model.HistoryPoint, from, to *time.Time) []model.HistoryPoint {
	if from == nil && to == nil {
		return points
	}
	out := make([]model.HistoryPoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.IsZero() {
			if from != nil && p.Timestamp.Before(*from) {
				continue
			}
			if to != nil && !p.Timestamp.Before(*to) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func downsampleHistory(points []model.HistoryPoint, max int) []model.HistoryPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]model.HistoryPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, points []model.HistoryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "equity_usdt", "fluctuation"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		ts := ""
		if !p.Timestamp.IsZero() {
			ts = p.Timestamp.Format(time.RFC3339)
		}
		record := []string{ts, p.Equity.String(), p.Fluctuation}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, points []model.HistoryPoint) error {
	if len(points) < 2 {
		return errors.New("at least two history points are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	equity := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp.Time
		equity[i] = p.Equity.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Equity (USDT)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Equity",
				XValues: x,
				YValues: equity,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
