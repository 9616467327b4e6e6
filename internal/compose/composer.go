// Package compose turns a document and its extracted text into per-platform posts.
//
// Each platform gets its own variant sized to that platform's limit rather than one text
// cut to the tightest limit.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

const (
	// linkWeight is what Mastodon and Twitter charge for any URL.
	linkWeight = 23
	ellipsis   = "…"
	maxLead    = 200
)

// Limit describes how a platform measures and bounds post text.
type Limit struct {
	Max int
	// Graphemes counts user-perceived characters instead of code points.
	Graphemes bool
	// Weighted counts code points outside the Latin and general-punctuation ranges as
	// two, the way X measures tweets.
	Weighted bool
	// InlineLink appends the URL to the text; otherwise it is carried as a facet.
	InlineLink bool
}

// DefaultLimits are the published limits of the supported platforms.
var DefaultLimits = map[domain.Platform]Limit{
	domain.PlatformMastodon: {Max: 500, InlineLink: true},
	domain.PlatformTwitter:  {Max: 280, Weighted: true, InlineLink: true},
	domain.PlatformBluesky:  {Max: 300, Graphemes: true},
	domain.PlatformTelegram: {Max: 4096, InlineLink: true},
}

var (
	pdfSuffix  = regexp.MustCompile(`(?i)\s*\(pdf\)\s*$`)
	spaceRun   = regexp.MustCompile(`\s+`)
	sentenceRe = regexp.MustCompile(`^(.+?[.!?])(\s|$)`)
)

// Composer implements ports.Composer.
type Composer struct {
	limits     map[domain.Platform]Limit
	platforms  []domain.Platform
	summarizer ports.Summarizer
	logger     *slog.Logger
}

var _ ports.Composer = (*Composer)(nil)

// Option customises a Composer.
type Option func(*Composer)

// WithSummarizer sets an external summarizer used for the lead sentence.
func WithSummarizer(s ports.Summarizer) Option {
	return func(c *Composer) { c.summarizer = s }
}

// WithLimits overrides per-platform limits.
func WithLimits(limits map[domain.Platform]Limit) Option {
	return func(c *Composer) {
		for p, l := range limits {
			c.limits[p] = l
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// New builds a composer producing variants for the given platforms.
func New(platforms []domain.Platform, opts ...Option) *Composer {
	c := &Composer{
		limits:    make(map[domain.Platform]Limit, len(DefaultLimits)),
		platforms: platforms,
	}
	for p, l := range DefaultLimits {
		c.limits[p] = l
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose never fails on empty text: it falls back to a placeholder built from the
// document's title or key.
func (c *Composer) Compose(ctx context.Context, doc domain.Document, text string) (domain.PostContent, error) {
	headline := Headline(doc, text)
	lead := c.lead(ctx, doc, text, headline)

	body := headline
	if lead != "" {
		body = headline + "\n\n" + lead
	}

	post := domain.PostContent{
		DocumentID: doc.ID,
		Title:      headline,
		Summary:    body,
		URL:        doc.URL,
		Variants:   make(map[domain.Platform]domain.Variant, len(c.platforms)),
	}

	for _, p := range c.platforms {
		limit, ok := c.limits[p]
		if !ok {
			return domain.PostContent{}, fmt.Errorf("no length limit for platform %s", p)
		}
		post.Variants[p] = variant(limit, headline, body, doc.URL)
	}

	return post, nil
}

func (l Limit) unit() unit {
	switch {
	case l.Weighted:
		return weightedPoints
	case l.Graphemes:
		return graphemeClusters
	default:
		return codePoints
	}
}

func variant(limit Limit, headline, body, url string) domain.Variant {
	u := limit.unit()
	if !limit.InlineLink {
		text := truncate(headline, limit.Max, u)
		if url == "" {
			return domain.Variant{Text: text}
		}
		return domain.Variant{Text: text, LinkStart: 0, LinkEnd: len(text)}
	}

	if url == "" {
		return domain.Variant{Text: truncate(body, limit.Max, u)}
	}

	budget := limit.Max - linkWeight - 1
	text := truncate(body, budget, u)
	return domain.Variant{Text: text + " " + url}
}

// Headline picks the post title: the document title, else the first meaningful line of
// text, else a name derived from the storage key.
func Headline(doc domain.Document, text string) string {
	if title := cleanTitle(doc.Title); title != "" {
		return title
	}
	for _, line := range strings.Split(text, "\n") {
		line = collapse(line)
		if meaningful(line) {
			return line
		}
	}
	if name := nameFromKey(doc.Key); name != "" {
		return name
	}
	return "New document: " + doc.ID
}

func (c *Composer) lead(ctx context.Context, doc domain.Document, text, headline string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	if c.summarizer != nil {
		summary, err := c.summarizer.Summarize(ctx, doc, text)
		if err == nil && strings.TrimSpace(summary) != "" {
			return clip(collapse(summary), maxLead)
		}
		if err != nil && c.logger != nil {
			c.logger.Warn("summarizer failed, using extracted lead", "document", doc.ID, "error", err)
		}
	}

	flat := collapse(text)
	flat = strings.TrimSpace(strings.TrimPrefix(flat, headline))
	if flat == "" {
		return ""
	}
	if m := sentenceRe.FindStringSubmatch(flat); m != nil {
		flat = m[1]
	}
	return clip(flat, maxLead)
}

type unit int

const (
	codePoints unit = iota
	graphemeClusters
	weightedPoints
)

// Truncate shortens s to at most max units, cutting on grapheme boundaries and marking the
// cut with an ellipsis. Units are graphemes or code points.
func Truncate(s string, max int, graphemes bool) string {
	if graphemes {
		return truncate(s, max, graphemeClusters)
	}
	return truncate(s, max, codePoints)
}

func truncate(s string, max int, u unit) string {
	if max <= 0 {
		return ""
	}
	if measure(s, u) <= max {
		return s
	}

	budget := max - measure(ellipsis, u)
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		cost := measure(cluster, u)
		if used+cost > budget {
			break
		}
		b.WriteString(cluster)
		used += cost
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace) + ellipsis
}

func measure(s string, u unit) int {
	switch u {
	case graphemeClusters:
		return uniseg.GraphemeClusterCount(s)
	case weightedPoints:
		n := 0
		for _, r := range s {
			n += weight(r)
		}
		return n
	default:
		return utf8.RuneCountInString(s)
	}
}

// weight follows X's counting: these ranges cost one, everything else two.
func weight(r rune) int {
	switch {
	case r <= 0x10FF, r >= 0x2000 && r <= 0x200D, r >= 0x2010 && r <= 0x201F, r >= 0x2032 && r <= 0x2037:
		return 1
	default:
		return 2
	}
}

func clip(s string, max int) string {
	return Truncate(s, max, true)
}

func cleanTitle(title string) string {
	return collapse(pdfSuffix.ReplaceAllString(title, ""))
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func meaningful(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if letters >= 3 {
				return true
			}
		}
	}
	return false
}

func nameFromKey(key string) string {
	base := path.Base(strings.TrimSpace(key))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return collapse(base)
}
