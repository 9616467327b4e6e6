package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

const (
	blueskyPDS = "https://bsky.social"
	// maxBlobSize is the PDS limit for image blobs.
	maxBlobSize = 1_000_000
)

// Bluesky creates app.bsky.feed.post records over XRPC with an app password session.
type Bluesky struct {
	client     *http.Client
	pds        string
	identifier string
	password   string

	mu      sync.Mutex
	session *blueskySession
}

type blueskySession struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

var _ ports.Publisher = (*Bluesky)(nil)

// NewBluesky logs in lazily on first publish; pds defaults to bsky.social.
func NewBluesky(pds, identifier, appPassword string, timeout time.Duration) *Bluesky {
	if pds == "" {
		pds = blueskyPDS
	}
	return &Bluesky{
		client:     &http.Client{Timeout: timeout},
		pds:        strings.TrimSuffix(pds, "/"),
		identifier: identifier,
		password:   appPassword,
	}
}

// Name implements ports.Publisher.
func (b *Bluesky) Name() domain.Platform { return domain.PlatformBluesky }

// Publish posts the Bluesky variant, turning the link range into a facet and attaching
// the preview as an image embed when it fits the blob limit.
func (b *Bluesky) Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome {
	sess, err := b.login(ctx)
	if err != nil {
		return fail(domain.PlatformBluesky, post, fmt.Errorf("create session: %w", err))
	}

	v := post.TextFor(domain.PlatformBluesky)
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      v.Text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"langs":     []string{"en"},
	}

	if post.URL != "" && v.LinkEnd > v.LinkStart {
		record["facets"] = []any{map[string]any{
			"index": map[string]int{"byteStart": v.LinkStart, "byteEnd": v.LinkEnd},
			"features": []any{map[string]string{
				"$type": "app.bsky.richtext.facet#link",
				"uri":   post.URL,
			}},
		}}
	}

	if post.Media != nil && len(post.Media.Data) <= maxBlobSize {
		blob, err := b.uploadBlob(ctx, sess, post.Media)
		if err != nil {
			return fail(domain.PlatformBluesky, post, fmt.Errorf("upload blob: %w", err))
		}
		record["embed"] = map[string]any{
			"$type":  "app.bsky.embed.images",
			"images": []any{map[string]any{"alt": post.Media.AltText, "image": blob}},
		}
	}

	req, err := newJSONRequest(ctx, b.pds+"/xrpc/com.atproto.repo.createRecord", map[string]any{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	})
	if err != nil {
		return fail(domain.PlatformBluesky, post, err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessJwt)

	var created struct {
		URI string `json:"uri"`
	}
	if err := doJSON(b.client, req, &created); err != nil {
		if Classify(err) == domain.ReasonAuth {
			b.reset()
		}
		return fail(domain.PlatformBluesky, post, fmt.Errorf("create record: %w", err))
	}

	return domain.Success(domain.PlatformBluesky, post.DocumentID, postURL(sess.Handle, created.URI))
}

func (b *Bluesky) login(ctx context.Context) (*blueskySession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, nil
	}

	req, err := newJSONRequest(ctx, b.pds+"/xrpc/com.atproto.server.createSession", map[string]string{
		"identifier": b.identifier,
		"password":   b.password,
	})
	if err != nil {
		return nil, err
	}

	var sess blueskySession
	if err := doJSON(b.client, req, &sess); err != nil {
		return nil, err
	}
	b.session = &sess
	return b.session, nil
}

func (b *Bluesky) reset() {
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
}

func (b *Bluesky) uploadBlob(ctx context.Context, sess *blueskySession, media *domain.Media) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.pds+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(media.Data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", media.MIMEType)
	req.Header.Set("Authorization", "Bearer "+sess.AccessJwt)

	var uploaded struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := doJSON(b.client, req, &uploaded); err != nil {
		return nil, err
	}
	return uploaded.Blob, nil
}

// postURL turns at://did/app.bsky.feed.post/rkey into a bsky.app link.
func postURL(handle, uri string) string {
	idx := strings.LastIndex(uri, "/")
	if handle == "" || idx < 0 || idx == len(uri)-1 {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, uri[idx+1:])
}
