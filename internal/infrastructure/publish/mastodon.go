package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mattn/go-mastodon"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

// Mastodon posts statuses to one instance with a user access token.
type Mastodon struct {
	client *mastodon.Client
}

var _ ports.Publisher = (*Mastodon)(nil)

// NewMastodon builds a client for baseURL.
func NewMastodon(baseURL, accessToken string, timeout time.Duration) *Mastodon {
	client := mastodon.NewClient(&mastodon.Config{
		Server:      baseURL,
		AccessToken: accessToken,
	})
	client.Client = http.Client{Timeout: timeout}
	client.UserAgent = userAgent
	return &Mastodon{client: client}
}

// Name implements ports.Publisher.
func (m *Mastodon) Name() domain.Platform { return domain.PlatformMastodon }

// Publish uploads the optional preview and posts the status.
func (m *Mastodon) Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome {
	toot := &mastodon.Toot{
		Status:     post.TextFor(domain.PlatformMastodon).Text,
		Visibility: mastodon.VisibilityPublic,
	}

	if post.Media != nil {
		attachment, err := m.client.UploadMediaFromMedia(ctx, &mastodon.Media{
			File:        bytes.NewReader(post.Media.Data),
			Description: post.Media.AltText,
		})
		if err != nil {
			return m.fail(post, fmt.Errorf("upload media: %w", err))
		}
		toot.MediaIDs = []mastodon.ID{attachment.ID}
	}

	status, err := m.client.PostStatus(ctx, toot)
	if err != nil {
		return m.fail(post, fmt.Errorf("post status: %w", err))
	}

	return domain.Success(domain.PlatformMastodon, post.DocumentID, status.URL)
}

func (m *Mastodon) fail(post domain.PostContent, err error) domain.PublishOutcome {
	var apiErr *mastodon.APIError
	if errors.As(err, &apiErr) {
		return domain.Failure(domain.PlatformMastodon, post.DocumentID, ReasonForStatus(apiErr.StatusCode), err)
	}
	return fail(domain.PlatformMastodon, post, err)
}
