package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/config"
	"tradewatch/internal/metrics"
	"tradewatch/internal/model"
)

const historyJSON = `[
	{"timestamp": "2024-05-01 10:00:00", "equity": 100},
	{"timestamp": "2024-05-01 11:00:00", "equity": 101.5},
	{"timestamp": "2024-05-01 12:00:00", "equity": 103},
	{"timestamp": "2024-05-01 13:00:00", "equity": 102}
]`

func newTestServer(t *testing.T, summaryStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		if summaryStatus != http.StatusOK {
			http.Error(w, `{"detail":"down"}`, summaryStatus)
			return
		}
		_, _ = w.Write([]byte(`{"current_equity":102,"usdt_balance":40,"total_pnl_pct":2,"active_positions":0,"updated_at":"13:00:00"}`))
	})
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[]`)) })
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(historyJSON)) })
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[]`)) })
	mux.HandleFunc("/trade/sell/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("卖出应使用 POST, 实际 %s", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, baseURL string) (*App, *bytes.Buffer) {
	t.Helper()
	chdir(t, t.TempDir())
	t.Setenv("TRADEWATCH_ENGINE_BASE_URL", baseURL)
	t.Setenv("TRADEWATCH_FEEDS_POSITIONS_INTERVAL", "1m")
	t.Setenv("TRADEWATCH_FEEDS_LOGS_INTERVAL", "1m")
	t.Setenv("TRADEWATCH_FEEDS_SUMMARY_INTERVAL", "1m")
	t.Setenv("TRADEWATCH_DASHBOARD_SETTLE_TIMEOUT", "5s")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestSnapshotRendersDashboard(t *testing.T) {
	srv := newTestServer(t, http.StatusOK)
	a, out := newTestApp(t, srv.URL)

	if err := a.Snapshot(context.Background()); err != nil {
		t.Fatalf("快照不应报错: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Last Update: 13:00:00", "$102.00", "No open positions", "Waiting for system logs..."} {
		if !strings.Contains(text, want) {
			t.Fatalf("快照缺少 %q:\n%s", want, text)
		}
	}
}

func TestSnapshotFatal(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError)
	a, out := newTestApp(t, srv.URL)

	err := a.Snapshot(context.Background())
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("summary 失败应返回 ErrFatal, 实际 %v", err)
	}
	if !strings.Contains(out.String(), "Error connecting to API") {
		t.Fatalf("应渲染错误页面: %q", out.String())
	}
}

func TestSell(t *testing.T) {
	srv := newTestServer(t, http.StatusOK)
	a, out := newTestApp(t, srv.URL)

	if err := a.Sell(context.Background(), "eth/usdt"); err != nil {
		t.Fatalf("卖出不应报错: %v", err)
	}
	if !strings.Contains(out.String(), "/trade/sell/ETH%2FUSDT") {
		t.Fatalf("输出缺少路径: %q", out.String())
	}
	if err := a.Sell(context.Background(), ""); err == nil {
		t.Fatal("空代码应报错")
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, http.StatusOK)
	a, _ := newTestApp(t, srv.URL)

	from := time.Date(2024, 5, 1, 11, 0, 0, 0, time.Local)
	path := filepath.Join("out", "equity.csv")
	if err := a.Export(context.Background(), ExportOptions{CSVPath: path, From: &from}); err != nil {
		t.Fatalf("导出不应报错: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("CSV 未生成: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("CSV 解析失败: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("期望表头加 3 行, 实际 %d", len(records))
	}
	if records[0][0] != "timestamp" || records[1][1] != "101.5" {
		t.Fatalf("CSV 内容不正确: %v", records)
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a := &App{Config: &config.Config{}, Logger: zerolog.Nop()}
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("缺少输出路径应报错")
	}
}

func TestDownsampleHistory(t *testing.T) {
	points := make([]model.HistoryPoint, 10)
	for i := range points {
		points[i].Equity = decimal.NewFromInt(int64(i))
	}

	got := downsampleHistory(points, 4)
	if len(got) != 4 {
		t.Fatalf("期望 4 个点, 实际 %d", len(got))
	}
	if !got[0].Equity.Equal(decimal.Zero) || !got[3].Equity.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("首尾点应保留: %v %v", got[0].Equity, got[3].Equity)
	}
	if len(downsampleHistory(points, 20)) != 10 {
		t.Fatal("点数不足时不应降采样")
	}
	if one := downsampleHistory(points, 1); len(one) != 1 || !one[0].Equity.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("max=1 应保留最后一个点: %v", one)
	}
}

func TestFilterHistory(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	points := []model.HistoryPoint{
		{Timestamp: model.Timestamp{Time: base}},
		{Timestamp: model.Timestamp{Time: base.Add(time.Hour)}},
		{Timestamp: model.Timestamp{Time: base.Add(2 * time.Hour)}},
	}
	from := base.Add(30 * time.Minute)
	to := base.Add(2 * time.Hour)
	got := filterHistory(points, &from, &to)
	if len(got) != 1 || !got[0].Timestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("区间过滤结果错误: %v", got)
	}
}

func TestReadyzEndpoint(t *testing.T) {
	srv := newTestServer(t, http.StatusOK)
	a, _ := newTestApp(t, srv.URL)

	m := metrics.New()
	ctrl, err := a.newController(m, nil)
	if err != nil {
		t.Fatalf("构造控制器失败: %v", err)
	}
	mux := newMux(m, ctrl)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("未就绪时应返回 503, 实际 %d", rec.Code)
	}

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	defer ctrl.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.WaitSettled(ctx); err != nil {
		t.Fatalf("feeds 未稳定: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready":true`) {
		t.Fatalf("就绪后应返回 200: %d %s", rec.Code, rec.Body.String())
	}

	// the gauge follows the last store update, which may land just after WaitSettled returns
	deadline := time.Now().Add(time.Second)
	for {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if strings.Contains(rec.Body.String(), "tradewatch_dashboard_ready 1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics 缺少 ready 指标")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
