package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier for one chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  telegramAPI,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	icon := "ℹ️"
	switch alert.Level {
	case AlertSignal:
		icon = "📈"
		if alert.Signal != nil && alert.Signal.Side == model.Sell {
			icon = "📉"
		}
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("%s *%s*\n\n%s", icon, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message)),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if bytes.IndexByte([]byte(specials), s[i]) >= 0 {
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
