package publish

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

const (
	twitterAPIBase    = "https://api.twitter.com"
	twitterUploadBase = "https://upload.twitter.com"
)

// TwitterCredentials is the OAuth1 user-context credential set.
type TwitterCredentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Twitter posts tweets through the v2 API and uploads media through v1.1.
type Twitter struct {
	client     *http.Client
	apiBase    string
	uploadBase string
}

var _ ports.Publisher = (*Twitter)(nil)

// NewTwitter signs every request with the four OAuth1 credentials.
func NewTwitter(creds TwitterCredentials, timeout time.Duration) *Twitter {
	return newTwitter(creds, &http.Client{Timeout: timeout}, twitterAPIBase, twitterUploadBase)
}

func newTwitter(creds TwitterCredentials, base *http.Client, apiBase, uploadBase string) *Twitter {
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)

	signed := cfg.Client(ctx, token)
	signed.Timeout = base.Timeout
	return &Twitter{
		client:     signed,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		uploadBase: strings.TrimSuffix(uploadBase, "/"),
	}
}

// Name implements ports.Publisher.
func (t *Twitter) Name() domain.Platform { return domain.PlatformTwitter }

// Publish uploads the optional preview, sets its alt text and creates the tweet.
func (t *Twitter) Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome {
	payload := map[string]any{"text": post.TextFor(domain.PlatformTwitter).Text}

	if post.Media != nil {
		mediaID, err := t.uploadMedia(ctx, post.Media)
		if err != nil {
			return fail(domain.PlatformTwitter, post, fmt.Errorf("upload media: %w", err))
		}
		payload["media"] = map[string]any{"media_ids": []string{mediaID}}
	}

	req, err := newJSONRequest(ctx, t.apiBase+"/2/tweets", payload)
	if err != nil {
		return fail(domain.PlatformTwitter, post, err)
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(t.client, req, &created); err != nil {
		return fail(domain.PlatformTwitter, post, fmt.Errorf("create tweet: %w", err))
	}

	postURL := ""
	if created.Data.ID != "" {
		postURL = "https://x.com/i/web/status/" + created.Data.ID
	}
	return domain.Success(domain.PlatformTwitter, post.DocumentID, postURL)
}

func (t *Twitter) uploadMedia(ctx context.Context, media *domain.Media) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("media", "preview.jpg")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uploadBase+"/1.1/media/upload.json", &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var uploaded struct {
		MediaID string `json:"media_id_string"`
	}
	if err := doJSON(t.client, req, &uploaded); err != nil {
		return "", err
	}

	if media.AltText != "" {
		meta, err := newJSONRequest(ctx, t.uploadBase+"/1.1/media/metadata/create.json", map[string]any{
			"media_id": uploaded.MediaID,
			"alt_text": map[string]string{"text": media.AltText},
		})
		if err != nil {
			return "", err
		}
		if err := doJSON(t.client, meta, nil); err != nil {
			return "", fmt.Errorf("set alt text: %w", err)
		}
	}

	return uploaded.MediaID, nil
}
