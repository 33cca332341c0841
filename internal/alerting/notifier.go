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
)

// Kind tells what happened to the rate source.
type Kind string

const (
	// KindFallback means the primary source failed and the static table is
	// being served.
	KindFallback Kind = "fallback"
	// KindRecovered means live rates are being served again after a fallback.
	KindRecovered Kind = "recovered"
)

// Notification describes a rate source state change.
type Notification struct {
	Kind       Kind
	At         time.Time
	Reference  string
	Currencies int
	Overrides  []string
	Cause      string
}

// Notifier delivers notifications to operators.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts notifications through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a notifier for one chat.
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

// Notify calls sendMessage with the rendered text.
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().
		Str("kind", string(note.Kind)).
		Time("at", note.At).
		Msg("notification sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	var b strings.Builder
	switch note.Kind {
	case KindFallback:
		b.WriteString("[fxconv] rate source DOWN, serving fallback table\n")
	case KindRecovered:
		b.WriteString("[fxconv] rate source recovered\n")
	default:
		fmt.Fprintf(&b, "[fxconv] %s\n", note.Kind)
	}
	fmt.Fprintf(&b, "At: %s UTC\n", note.At.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Reference: %s (%d currencies)\n", note.Reference, note.Currencies)
	if len(note.Overrides) > 0 {
		fmt.Fprintf(&b, "Overrides: %s\n", strings.Join(note.Overrides, ","))
	}
	if note.Cause != "" {
		fmt.Fprintf(&b, "Cause: %s\n", note.Cause)
	}
	return b.String()
}

// LogNotifier writes notifications to the log. Used when no chat is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	ev := n.logger.Warn()
	if note.Kind == KindRecovered {
		ev = n.logger.Info()
	}
	ev.Str("kind", string(note.Kind)).
		Str("reference", note.Reference).
		Int("currencies", note.Currencies).
		Str("cause", note.Cause).
		Msg("rate source state changed")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
