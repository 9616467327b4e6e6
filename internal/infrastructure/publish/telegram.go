package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram sends announcements to a chat via the bot API.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Publisher = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(botToken, chatID string, timeout time.Duration) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements ports.Publisher.
func (t *Telegram) Name() domain.Platform { return domain.PlatformTelegram }

// Publish posts a plain-text message; Telegram renders the link preview itself.
func (t *Telegram) Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome {
	if t.botToken == "" || t.chatID == "" {
		return domain.Failure(domain.PlatformTelegram, post.DocumentID, domain.ReasonAuth, fmt.Errorf("telegram publisher misconfigured"))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", post.TextFor(domain.PlatformTelegram).Text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(domain.PlatformTelegram, post, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := doJSON(t.client, req, nil); err != nil {
		return fail(domain.PlatformTelegram, post, fmt.Errorf("send message: %w", err))
	}
	return domain.Success(domain.PlatformTelegram, post.DocumentID, "")
}
