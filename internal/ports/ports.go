package ports

import (
	"context"
	"time"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
)

// DocumentSource lists and downloads candidate PDFs.
type DocumentSource interface {
	List(ctx context.Context) ([]domain.Document, error)
	Fetch(ctx context.Context, doc domain.Document) ([]byte, error)
}

// StateStore persists the announcement ledger between runs.
type StateStore interface {
	Load(ctx context.Context) (ledger.State, error)
	Save(ctx context.Context, state ledger.State) error
}

// Extractor turns raw PDF bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// Renderer produces a preview image of a document's first page.
type Renderer interface {
	Render(ctx context.Context, raw []byte) (*domain.Media, error)
}

// Summarizer condenses extracted text into a short sentence.
type Summarizer interface {
	Summarize(ctx context.Context, doc domain.Document, text string) (string, error)
}

// Composer builds the per-platform announcement for a document.
type Composer interface {
	Compose(ctx context.Context, doc domain.Document, text string) (domain.PostContent, error)
}

// Publisher delivers an announcement to a single platform. Implementations report
// failures through the outcome and never panic past the caller.
type Publisher interface {
	Name() domain.Platform
	Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome
}

// ErrorReporter forwards contained failures to external telemetry.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// RunLock guards against overlapping runs.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// MetricsSink receives per-run counters.
type MetricsSink interface {
	ObserveOutcome(outcome domain.PublishOutcome)
	ObserveRun(report RunSummary)
}

// RunSummary is the subset of a run report exported as metrics.
type RunSummary struct {
	Listed    int
	New       int
	Retried   int
	Skipped   int
	Failed    bool
	Duration  time.Duration
	Committed bool
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
