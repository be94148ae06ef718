package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ohlc-forecast/internal/forecast"
)

// Notification 封装一次预测的推送内容。
type Notification struct {
	CycleID string
	Result  forecast.Result
	Text    string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Payload is the structured body shared by the broker channels.
type Payload struct {
	CycleID string          `json:"cycle_id"`
	Result  forecast.Result `json:"result"`
	Text    string          `json:"text"`
}

func encodePayload(note Notification) ([]byte, error) {
	body, err := json.Marshal(Payload{CycleID: note.CycleID, Result: note.Result, Text: note.Text})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return body, nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken  string
	chatID    string
	baseURL   string
	parseMode string
	client    *http.Client
	logger    zerolog.Logger
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
		botToken:  botToken,
		chatID:    chatID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		parseMode: "Markdown",
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       note.Text,
		"parse_mode": n.parseMode,
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
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
		}
	}

	n.logger.Info().
		Str("cycle_id", note.CycleID).
		Str("symbol", note.Result.Symbol).
		Str("signal", string(note.Result.Signal)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Name identifies the channel in logs and metrics.
func (n *TelegramNotifier) Name() string { return "telegram" }

// StdoutNotifier writes the message text to a writer.
type StdoutNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutNotifier constructs a notifier printing to w.
func NewStdoutNotifier(w io.Writer) *StdoutNotifier {
	return &StdoutNotifier{w: w}
}

// Notify prints the text followed by a blank line.
func (n *StdoutNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "%s\n\n", note.Text)
	return err
}

// Name identifies the channel in logs and metrics.
func (n *StdoutNotifier) Name() string { return "stdout" }

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*StdoutNotifier)(nil)
)
