package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
	"PDFAnnouncer/internal/ports"
)

const (
	defaultSelector = ".view-content a"
	userAgent       = "PDFAnnouncer/1.0"
)

var pdfLabel = regexp.MustCompile(`(?i)\s*\(pdf\)\s*$`)

// IndexSource discovers PDFs linked from an HTML index page. Document identity is the
// absolute link URL.
type IndexSource struct {
	client   *http.Client
	pageURL  string
	selector string
	maxSize  int64
	logger   *slog.Logger
}

var _ ports.DocumentSource = (*IndexSource)(nil)

// NewIndexSource wires an HTTP client; selector defaults to links inside ".view-content".
func NewIndexSource(client *http.Client, pageURL, selector string, maxSize int64, log *slog.Logger) *IndexSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if selector == "" {
		selector = defaultSelector
	}
	return &IndexSource{
		client:   client,
		pageURL:  pageURL,
		selector: selector,
		maxSize:  maxSize,
		logger:   log,
	}
}

// List fetches the index page and returns each distinct PDF link.
func (s *IndexSource) List(ctx context.Context) ([]domain.Document, error) {
	base, err := url.Parse(s.pageURL)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "list", Key: s.pageURL, Err: fmt.Errorf("invalid index url: %w", err)}
	}

	doc, err := s.fetchDocument(ctx)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "list", Key: s.pageURL, Err: err}
	}

	docs := extractLinks(doc, base, s.selector)
	ledger.SortDocuments(docs)
	if s.logger != nil {
		s.logger.Debug("index page parsed", "url", s.pageURL, "documents", len(docs))
	}
	return docs, nil
}

// Fetch downloads the linked PDF.
func (s *IndexSource) Fetch(ctx context.Context, d domain.Document) ([]byte, error) {
	resp, err := s.get(ctx, d.URL)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "fetch", Key: d.URL, Err: err}
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if s.maxSize > 0 {
		reader = io.LimitReader(resp.Body, s.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "fetch", Key: d.URL, Err: err}
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, &domain.RetrievalError{Op: "fetch", Key: d.URL, Err: fmt.Errorf("body exceeds %d bytes", s.maxSize)}
	}
	return data, nil
}

func (s *IndexSource) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	resp, err := s.get(ctx, s.pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *IndexSource) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return resp, nil
}

func extractLinks(doc *goquery.Document, base *url.URL, selector string) []domain.Document {
	var (
		docs []domain.Document
		seen = map[string]struct{}{}
	)

	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || !strings.HasSuffix(strings.ToLower(href), "pdf") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		title := strings.Join(strings.Fields(a.Text()), " ")
		docs = append(docs, domain.Document{
			ID:    abs,
			Key:   ref.Path,
			URL:   abs,
			Title: strings.TrimSpace(pdfLabel.ReplaceAllString(title, "")),
		})
	})

	return docs
}
