package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramChannel 通过 Telegram Bot API 推送消息，支持多个 chat 扇出。
type TelegramChannel struct {
	botToken string
	chatIDs  []string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramChannel 构造 Telegram 告警通道。
func NewTelegramChannel(botToken string, chatIDs []string, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramChannel{
		botToken: botToken,
		chatIDs:  chatIDs,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_channel").Logger(),
	}
}

// Name identifies the channel in notification history.
func (c *TelegramChannel) Name() string { return "telegram" }

// Send fans the text out to every configured chat. Delivery succeeds when at
// least one chat accepts; per-chat failures are logged individually. When all
// chats fail, the error is transient if any individual failure was.
func (c *TelegramChannel) Send(ctx context.Context, text string) error {
	if len(c.chatIDs) == 0 {
		return errors.New("no telegram chat ids configured")
	}

	delivered := 0
	transient := false
	var lastErr error

	for _, chatID := range c.chatIDs {
		if err := c.sendOne(ctx, chatID, text); err != nil {
			c.logger.Error().Err(err).Str("chat_id", chatID).Msg("telegram 发送失败")
			if IsTransient(err) {
				transient = true
			}
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered > 0 {
		c.logger.Info().Int("delivered", delivered).Int("chats", len(c.chatIDs)).Msg("告警已发送 (Telegram)")
		return nil
	}
	if transient {
		return Transient(fmt.Errorf("all %d chats failed: %w", len(c.chatIDs), lastErr))
	}
	return fmt.Errorf("all %d chats failed: %w", len(c.chatIDs), lastErr)
}

func (c *TelegramChannel) sendOne(ctx context.Context, chatID, text string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("send telegram request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Transient(fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode))
	}
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
	return nil
}

var _ Channel = (*TelegramChannel)(nil)
