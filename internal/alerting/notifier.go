package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Event names a dashboard readiness transition.
type Event string

const (
	EventFatal     Event = "fatal"
	EventRecovered Event = "recovered"
)

// Notification 封装告警上下文。
type Notification struct {
	At            time.Time
	Event         Event
	Feed          string
	ErrorKind     string
	ErrorMessage  string
	LastEquity    *decimal.Decimal
	LastUpdatedAt time.Time
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Str("event", string(note.Event)).
		Str("feed", note.Feed).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Event {
	case EventRecovered:
		builder.WriteString("[Trade Dashboard] RECOVERED\n")
	default:
		builder.WriteString("[Trade Dashboard] FATAL\n")
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	if note.Feed != "" {
		builder.WriteString(fmt.Sprintf("Feed: %s\n", note.Feed))
	}
	if note.ErrorKind != "" || note.ErrorMessage != "" {
		builder.WriteString(fmt.Sprintf("Error: %s %s\n", note.ErrorKind, note.ErrorMessage))
	}
	if note.LastEquity != nil {
		builder.WriteString(fmt.Sprintf("Last equity: $%s\n", note.LastEquity.StringFixed(2)))
	}
	if !note.LastUpdatedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Last good data: %s UTC\n", note.LastUpdatedAt.UTC().Format(time.RFC3339)))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
