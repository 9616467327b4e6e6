package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"PDFAnnouncer/internal/domain"
)

func samplePost(withMedia bool) domain.PostContent {
	post := domain.PostContent{
		DocumentID: "docs/a.pdf",
		Title:      "Budget report",
		Summary:    "Budget report",
		URL:        "https://example.org/docs/a.pdf",
		Variants: map[domain.Platform]domain.Variant{
			domain.PlatformMastodon: {Text: "Budget report https://example.org/docs/a.pdf"},
			domain.PlatformTwitter:  {Text: "Budget report https://example.org/docs/a.pdf"},
			domain.PlatformBluesky:  {Text: "Budget report", LinkStart: 0, LinkEnd: 13},
			domain.PlatformTelegram: {Text: "Budget report\nhttps://example.org/docs/a.pdf"},
		},
	}
	if withMedia {
		post.Media = &domain.Media{Data: []byte("jpeg"), MIMEType: "image/jpeg", AltText: "first page"}
	}
	return post
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want domain.FailureReason
	}{
		{&StatusError{StatusCode: 401}, domain.ReasonAuth},
		{&StatusError{StatusCode: 403}, domain.ReasonAuth},
		{&StatusError{StatusCode: 429}, domain.ReasonRateLimit},
		{&StatusError{StatusCode: 503}, domain.ReasonTransient},
		{&StatusError{StatusCode: 422}, domain.ReasonRejected},
		{context.DeadlineExceeded, domain.ReasonTransient},
		{errors.New("boom"), domain.ReasonRejected},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.err.Error())
	}
}

func TestMastodonPublishWithMedia(t *testing.T) {
	t.Parallel()

	var status string
	var mediaSeen atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/media", "/api/v2/media":
			mediaSeen.Store(true)
			_, _ = io.WriteString(w, `{"id":"77","type":"image"}`)
		case "/api/v1/statuses":
			require.NoError(t, r.ParseForm())
			status = r.FormValue("status")
			assert.Equal(t, "77", r.FormValue("media_ids[]"))
			_, _ = io.WriteString(w, `{"id":"1","url":"https://masto.example/@bot/1"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out := NewMastodon(srv.URL, "token", time.Second).Publish(context.Background(), samplePost(true))

	require.True(t, out.Succeeded(), "%v", out.Err)
	assert.True(t, mediaSeen.Load())
	assert.Equal(t, "Budget report https://example.org/docs/a.pdf", status)
	assert.Equal(t, "https://masto.example/@bot/1", out.PostURL)
	assert.Equal(t, domain.PlatformMastodon, out.Platform)
}

func TestMastodonAuthFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"The access token is invalid"}`)
	}))
	defer srv.Close()

	out := NewMastodon(srv.URL, "bad", time.Second).Publish(context.Background(), samplePost(false))

	require.False(t, out.Succeeded())
	assert.Equal(t, domain.ReasonAuth, out.Err.Reason)
}

func TestTwitterPublishUploadsMediaThenTweets(t *testing.T) {
	t.Parallel()

	var calls []string
	var mu sync.Mutex
	var tweet map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path)
		mu.Unlock()
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))

		switch r.URL.Path {
		case "/1.1/media/upload.json":
			file, _, err := r.FormFile("media")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			assert.Equal(t, "jpeg", string(data))
			_, _ = io.WriteString(w, `{"media_id_string":"555"}`)
		case "/1.1/media/metadata/create.json":
			w.WriteHeader(http.StatusOK)
		case "/2/tweets":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tweet))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"data":{"id":"999","text":"ok"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	creds := TwitterCredentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "as"}
	tw := newTwitter(creds, srv.Client(), srv.URL, srv.URL)

	out := tw.Publish(context.Background(), samplePost(true))

	require.True(t, out.Succeeded(), "%v", out.Err)
	assert.Equal(t, "https://x.com/i/web/status/999", out.PostURL)
	assert.Equal(t, []string{"/1.1/media/upload.json", "/1.1/media/metadata/create.json", "/2/tweets"}, calls)
	assert.Equal(t, "Budget report https://example.org/docs/a.pdf", tweet["text"])
	media, ok := tweet["media"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"555"}, media["media_ids"])
}

func TestTwitterRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tw := newTwitter(TwitterCredentials{}, srv.Client(), srv.URL, srv.URL)
	out := tw.Publish(context.Background(), samplePost(false))

	require.False(t, out.Succeeded())
	assert.Equal(t, domain.ReasonRateLimit, out.Err.Reason)
	var status *StatusError
	assert.True(t, errors.As(out.Err, &status))
}

func newBlueskyServer(t *testing.T, record *map[string]any, sessions *atomic.Int32, failCreate *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			sessions.Add(1)
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "bot.example", creds["identifier"])
			_, _ = io.WriteString(w, `{"accessJwt":"jwt","did":"did:plc:abc","handle":"bot.example"}`)
		case "/xrpc/com.atproto.repo.uploadBlob":
			assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
			assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
			_, _ = io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"bafy"},"mimeType":"image/jpeg","size":4}}`)
		case "/xrpc/com.atproto.repo.createRecord":
			if failCreate != nil && failCreate.Load() > 0 {
				failCreate.Add(-1)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"ExpiredToken"}`)
				return
			}
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if record != nil {
				*record = body
			}
			_, _ = io.WriteString(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/3kxyz","cid":"bafy2"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestBlueskyPublishWithFacetAndEmbed(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var sessions atomic.Int32
	srv := newBlueskyServer(t, &body, &sessions, nil)
	defer srv.Close()

	bs := NewBluesky(srv.URL, "bot.example", "app-pass", time.Second)
	out := bs.Publish(context.Background(), samplePost(true))

	require.True(t, out.Succeeded(), "%v", out.Err)
	assert.Equal(t, "https://bsky.app/profile/bot.example/post/3kxyz", out.PostURL)
	assert.Equal(t, "did:plc:abc", body["repo"])

	record := body["record"].(map[string]any)
	assert.Equal(t, "Budget report", record["text"])
	facets := record["facets"].([]any)
	require.Len(t, facets, 1)
	facet := facets[0].(map[string]any)
	index := facet["index"].(map[string]any)
	assert.EqualValues(t, 0, index["byteStart"])
	assert.EqualValues(t, 13, index["byteEnd"])
	feature := facet["features"].([]any)[0].(map[string]any)
	assert.Equal(t, "https://example.org/docs/a.pdf", feature["uri"])

	embed := record["embed"].(map[string]any)
	assert.Equal(t, "app.bsky.embed.images", embed["$type"])

	out = bs.Publish(context.Background(), samplePost(false))
	require.True(t, out.Succeeded())
	assert.EqualValues(t, 1, sessions.Load(), "session is reused")
}

func TestBlueskyDropsSessionOnAuthFailure(t *testing.T) {
	t.Parallel()

	var sessions, failCreate atomic.Int32
	failCreate.Store(1)
	srv := newBlueskyServer(t, nil, &sessions, &failCreate)
	defer srv.Close()

	bs := NewBluesky(srv.URL, "bot.example", "app-pass", time.Second)

	out := bs.Publish(context.Background(), samplePost(false))
	require.False(t, out.Succeeded())
	assert.Equal(t, domain.ReasonAuth, out.Err.Reason)

	out = bs.Publish(context.Background(), samplePost(false))
	require.True(t, out.Succeeded(), "%v", out.Err)
	assert.EqualValues(t, 2, sessions.Load())
}

func TestBlueskySkipsOversizedMedia(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var sessions atomic.Int32
	srv := newBlueskyServer(t, &body, &sessions, nil)
	defer srv.Close()

	post := samplePost(true)
	post.Media.Data = bytes.Repeat([]byte{1}, maxBlobSize+1)

	out := NewBluesky(srv.URL, "bot.example", "app-pass", time.Second).Publish(context.Background(), post)

	require.True(t, out.Succeeded(), "%v", out.Err)
	record := body["record"].(map[string]any)
	_, hasEmbed := record["embed"]
	assert.False(t, hasEmbed)
}

func TestPostURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://bsky.app/profile/h.example/post/abc", postURL("h.example", "at://did:plc:1/app.bsky.feed.post/abc"))
	assert.Empty(t, postURL("", "at://did:plc:1/app.bsky.feed.post/abc"))
	assert.Empty(t, postURL("h.example", "broken/"))
}

func TestTelegramSendMessage(t *testing.T) {
	t.Parallel()

	var text, chat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		text = r.PostForm.Get("text")
		chat = r.PostForm.Get("chat_id")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "-100", time.Second)
	tg.apiBase = srv.URL

	out := tg.Publish(context.Background(), samplePost(false))

	require.True(t, out.Succeeded(), "%v", out.Err)
	assert.Equal(t, "-100", chat)
	assert.Equal(t, "Budget report\nhttps://example.org/docs/a.pdf", text)
}

func TestTelegramMisconfigured(t *testing.T) {
	t.Parallel()

	out := NewTelegram("", "", time.Second).Publish(context.Background(), samplePost(false))

	require.False(t, out.Succeeded())
	assert.Equal(t, domain.ReasonAuth, out.Err.Reason)
}

func TestDryRunWritesPost(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out := NewDryRun(domain.PlatformBluesky, &buf, nil).Publish(context.Background(), samplePost(true))

	require.True(t, out.Succeeded())
	assert.Contains(t, buf.String(), "would have posted")
	assert.Contains(t, buf.String(), `"Budget report"`)
	assert.Contains(t, buf.String(), "image/jpeg")
}

type countingPublisher struct {
	calls atomic.Int32
}

func (c *countingPublisher) Name() domain.Platform { return domain.PlatformMastodon }

func (c *countingPublisher) Publish(_ context.Context, post domain.PostContent) domain.PublishOutcome {
	c.calls.Add(1)
	return domain.Success(domain.PlatformMastodon, post.DocumentID, "")
}

func TestThrottledFailsTransientWhenContextExpires(t *testing.T) {
	t.Parallel()

	next := &countingPublisher{}
	th := NewThrottled(next, rate.NewLimiter(rate.Every(time.Hour), 1))

	first := th.Publish(context.Background(), samplePost(false))
	require.True(t, first.Succeeded())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	second := th.Publish(ctx, samplePost(false))

	require.False(t, second.Succeeded())
	assert.Equal(t, domain.ReasonTransient, second.Err.Reason)
	assert.EqualValues(t, 1, next.calls.Load())
	assert.Equal(t, domain.PlatformMastodon, th.Name())
}
