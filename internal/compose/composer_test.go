package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PDFAnnouncer/internal/domain"
)

var platforms = []domain.Platform{domain.PlatformMastodon, domain.PlatformTwitter, domain.PlatformBluesky}

type stubSummarizer struct {
	summary string
	err     error
}

func (s stubSummarizer) Summarize(context.Context, domain.Document, string) (string, error) {
	return s.summary, s.err
}

func TestComposeUsesTitleAndLeadSentence(t *testing.T) {
	t.Parallel()

	doc := domain.Document{ID: "a", Key: "projects/a.pdf", URL: "https://example.org/a.pdf", Title: "Queens Blvd Safety (pdf)"}
	text := "Queens Blvd Safety\n\nThe project adds protected bike lanes. Construction starts in May."

	post, err := New(platforms).Compose(context.Background(), doc, text)
	require.NoError(t, err)

	assert.Equal(t, "Queens Blvd Safety", post.Title)
	assert.Equal(t, "Queens Blvd Safety\n\nThe project adds protected bike lanes.", post.Summary)
	assert.Equal(t, post.Summary+" https://example.org/a.pdf", post.Variants[domain.PlatformMastodon].Text)

	bsky := post.Variants[domain.PlatformBluesky]
	assert.Equal(t, "Queens Blvd Safety", bsky.Text)
	assert.Equal(t, 0, bsky.LinkStart)
	assert.Equal(t, len("Queens Blvd Safety"), bsky.LinkEnd)
}

func TestComposeRespectsEveryPlatformLimit(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Ünïcode street redesign 🚲 ", 60)
	doc := domain.Document{ID: "b", Key: "b.pdf", URL: "https://example.org/b.pdf", Title: long}

	post, err := New(platforms).Compose(context.Background(), doc, long)
	require.NoError(t, err)

	twitter := post.Variants[domain.PlatformTwitter].Text
	assert.LessOrEqual(t, measure(strings.TrimSuffix(twitter, " https://example.org/b.pdf"), weightedPoints), 280-23-1)
	assert.True(t, strings.HasSuffix(twitter, "… https://example.org/b.pdf"))

	mastodon := post.Variants[domain.PlatformMastodon].Text
	assert.LessOrEqual(t, utf8.RuneCountInString(strings.TrimSuffix(mastodon, " https://example.org/b.pdf")), 500-23-1)

	bsky := post.Variants[domain.PlatformBluesky]
	assert.LessOrEqual(t, uniseg.GraphemeClusterCount(bsky.Text), 300)
	assert.Equal(t, len(bsky.Text), bsky.LinkEnd)
}

func TestComposeFallsBackOnEmptyText(t *testing.T) {
	t.Parallel()

	doc := domain.Document{ID: "k", Key: "2026/atlantic-ave_phase_2.pdf"}
	post, err := New(platforms).Compose(context.Background(), doc, "  \n\t ")
	require.NoError(t, err)

	assert.Equal(t, "atlantic ave phase 2", post.Title)
	assert.Equal(t, "atlantic ave phase 2", post.Variants[domain.PlatformTwitter].Text)
	assert.Equal(t, domain.Variant{Text: "atlantic ave phase 2"}, post.Variants[domain.PlatformBluesky])

	post, err = New(platforms).Compose(context.Background(), domain.Document{ID: "id-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "New document: id-1", post.Title)
}

func TestComposeHeadlineFromFirstMeaningfulLine(t *testing.T) {
	t.Parallel()

	doc := domain.Document{ID: "c", Key: "c.pdf"}
	post, err := New(platforms).Compose(context.Background(), doc, "12\n--\n  Fulton   Street Busway \nDetails follow")
	require.NoError(t, err)

	assert.Equal(t, "Fulton Street Busway", post.Title)
}

func TestComposePrefersSummarizer(t *testing.T) {
	t.Parallel()

	doc := domain.Document{ID: "d", Key: "d.pdf", Title: "Plan"}
	post, err := New(platforms, WithSummarizer(stubSummarizer{summary: "A  short summary."})).
		Compose(context.Background(), doc, "Plan\nLong body text.")
	require.NoError(t, err)
	assert.Equal(t, "Plan\n\nA short summary.", post.Summary)

	post, err = New(platforms, WithSummarizer(stubSummarizer{err: errors.New("quota")})).
		Compose(context.Background(), doc, "Plan\nLong body text.")
	require.NoError(t, err)
	assert.Equal(t, "Plan\n\nLong body text.", post.Summary)
}

func TestComposeUnknownPlatform(t *testing.T) {
	t.Parallel()

	_, err := New([]domain.Platform{"myspace"}).Compose(context.Background(), domain.Document{ID: "x"}, "")
	assert.Error(t, err)
}

func TestComposeWeighsWideCharactersForTwitter(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("東京都交通局の計画", 30)
	doc := domain.Document{ID: "c", Key: "c.pdf", URL: "https://example.org/c.pdf", Title: title}

	post, err := New(platforms).Compose(context.Background(), doc, "")
	require.NoError(t, err)

	text := strings.TrimSuffix(post.Variants[domain.PlatformTwitter].Text, " https://example.org/c.pdf")
	assert.LessOrEqual(t, measure(text, weightedPoints), 280-23-1)
	assert.Greater(t, measure(text, weightedPoints), 280-23-1-4)
	assert.Less(t, utf8.RuneCountInString(text), 140)
}

func TestTruncateWeighted(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, measure("café 👍", weightedPoints))
	assert.Equal(t, "abc", truncate("abc", 3, weightedPoints))
	assert.Equal(t, "日本語…", truncate("日本語テキスト", 9, weightedPoints))
	assert.Equal(t, "“quoted”", truncate("“quoted”", 8, weightedPoints))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10, false))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5, false))
	assert.Equal(t, "ab…", Truncate("ab cdefgh", 4, false))
	assert.Equal(t, "👍🏽👍🏽…", Truncate("👍🏽👍🏽👍🏽👍🏽", 3, true))
	assert.Equal(t, "", Truncate("abc", 0, true))
}
