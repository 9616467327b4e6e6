package domain

import "time"

// Document describes one PDF discovered by a source.
type Document struct {
	ID         string
	Key        string
	URL        string
	Title      string
	ModifiedAt time.Time
	Size       int64
}

// DisplayName returns the best human label available for the document.
func (d Document) DisplayName() string {
	switch {
	case d.Title != "":
		return d.Title
	case d.Key != "":
		return d.Key
	default:
		return d.ID
	}
}

// Media is an optional attachment published alongside the post text.
type Media struct {
	Data     []byte
	MIMEType string
	AltText  string
}

// Variant is the text prepared for a single platform.
type Variant struct {
	Text string
	// LinkStart/LinkEnd delimit the byte range of Text that links to URL, for platforms
	// that carry links as rich-text facets instead of inline URLs.
	LinkStart int
	LinkEnd   int
}

// PostContent is the composed announcement for one document.
type PostContent struct {
	DocumentID string
	Title      string
	Summary    string
	URL        string
	Variants   map[Platform]Variant
	Media      *Media
}

// TextFor returns the platform variant, falling back to the summary.
func (p PostContent) TextFor(platform Platform) Variant {
	if v, ok := p.Variants[platform]; ok {
		return v
	}
	return Variant{Text: p.Summary}
}
