// Package telegram announces maintenance changes to an operator chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification sends a maintenance notification via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Bool("enabled", msg.Enabled).
		Str("type", string(msg.Type)).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      s.formatMessage(msg),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b bytes.Buffer

	if msg.Enabled {
		b.WriteString(fmt.Sprintf("🚧 <b>Maintenance enabled</b> (%s)\n\n", escapeHTML(string(msg.Type))))
		b.WriteString(fmt.Sprintf("<b>Reason:</b> %s\n", escapeHTML(msg.Reason)))
		b.WriteString(fmt.Sprintf("<b>Started:</b> %s\n", escapeHTML(msg.StartedAt)))
		b.WriteString(fmt.Sprintf("<b>Estimated end:</b> %s\n", escapeHTML(msg.EstimatedEnd)))
	} else {
		b.WriteString(fmt.Sprintf("✅ <b>Maintenance disabled</b> (%s)\n\n", escapeHTML(string(msg.Type))))
		b.WriteString(fmt.Sprintf("<b>At:</b> %s\n", msg.At.Format("2006-01-02 15:04:05 MST")))
	}

	ok := msg.HostsTotal - len(msg.HostsFailed)
	b.WriteString(fmt.Sprintf("<b>Hosts:</b> %d/%d updated\n", ok, msg.HostsTotal))

	if len(msg.HostsFailed) > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ <b>Failed hosts:</b> %s\n", escapeHTML(strings.Join(msg.HostsFailed, ", "))))
	}
	if msg.PurgeError != "" {
		b.WriteString(fmt.Sprintf("\n⚠️ <b>Cache purge failed:</b> <code>%s</code>\n", escapeHTML(msg.PurgeError)))
	}

	return b.String()
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
