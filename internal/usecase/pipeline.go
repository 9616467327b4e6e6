package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
	"PDFAnnouncer/internal/ports"
)

// Phase is the position of a run in its state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListing    Phase = "listing"
	PhaseDiffing    Phase = "diffing"
	PhaseProcessing Phase = "processing"
	PhaseCommitting Phase = "committing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.DocumentSource
	Store      ports.StateStore
	Extractor  ports.Extractor
	Renderer   ports.Renderer
	Composer   ports.Composer
	Publishers []ports.Publisher
	Reporter   ports.ErrorReporter
	Metrics    ports.MetricsSink
	Lock       ports.RunLock
	Logger     *slog.Logger
	Now        func() time.Time
}

// Options bound one run.
type Options struct {
	Concurrency int
	MaxAttempts int
	// MaxNew fails the run before anything is posted when more documents are queued,
	// unseen and retried together; zero disables the guard.
	MaxNew int
	// DryRun leaves the ledger untouched.
	DryRun bool
	// NoPost records documents as announced on every target platform without posting.
	NoPost bool

	ListTimeout    time.Duration
	FetchTimeout   time.Duration
	ExtractTimeout time.Duration
	PublishTimeout time.Duration
	CommitTimeout  time.Duration
}

// DocumentReport is what happened to one document in a run.
type DocumentReport struct {
	Document domain.Document
	Retry    bool
	Targets  []domain.Platform
	Outcomes []domain.PublishOutcome
	// Err is set when the document was skipped and left unrecorded.
	Err error
	// ExtractErr is set when the post was composed from empty text.
	ExtractErr error
}

// Succeeded lists the platforms that accepted the post.
func (d DocumentReport) Succeeded() []domain.Platform {
	var out []domain.Platform
	for _, o := range d.Outcomes {
		if o.Succeeded() {
			out = append(out, o.Platform)
		}
	}
	return out
}

// Report summarises a run.
type Report struct {
	RunID      string
	Phase      Phase
	Listed     int
	New        int
	Retried    int
	Documents  []DocumentReport
	Exhausted  []string
	Committed  bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Skipped counts documents that were left unrecorded.
func (r Report) Skipped() int {
	n := 0
	for _, d := range r.Documents {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Outcomes flattens every publish outcome of the run.
func (r Report) Outcomes() []domain.PublishOutcome {
	var out []domain.PublishOutcome
	for _, d := range r.Documents {
		out = append(out, d.Outcomes...)
	}
	return out
}

// Summary is the metrics view of the report.
func (r Report) Summary() ports.RunSummary {
	return ports.RunSummary{
		Listed:    r.Listed,
		New:       r.New,
		Retried:   r.Retried,
		Skipped:   r.Skipped(),
		Failed:    r.Phase == PhaseFailed,
		Duration:  r.FinishedAt.Sub(r.StartedAt),
		Committed: r.Committed,
	}
}

// Pipeline implements the discover, extract, dedup, publish and commit cycle.
type Pipeline struct {
	source     ports.DocumentSource
	store      ports.StateStore
	extractor  ports.Extractor
	renderer   ports.Renderer
	composer   ports.Composer
	publishers map[domain.Platform]ports.Publisher
	platforms  []domain.Platform
	reporter   ports.ErrorReporter
	metrics    ports.MetricsSink
	lock       ports.RunLock
	logger     *slog.Logger
	now        func() time.Time
	opts       Options
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts Options) *Pipeline {
	p := &Pipeline{
		source:     deps.Source,
		store:      deps.Store,
		extractor:  deps.Extractor,
		renderer:   deps.Renderer,
		composer:   deps.Composer,
		publishers: make(map[domain.Platform]ports.Publisher, len(deps.Publishers)),
		reporter:   deps.Reporter,
		metrics:    deps.Metrics,
		lock:       deps.Lock,
		logger:     deps.Logger,
		now:        deps.Now,
		opts:       opts,
	}
	for _, pub := range deps.Publishers {
		if _, dup := p.publishers[pub.Name()]; !dup {
			p.platforms = append(p.platforms, pub.Name())
		}
		p.publishers[pub.Name()] = pub
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.opts.Concurrency < 1 {
		p.opts.Concurrency = 1
	}
	return p
}

// Platforms lists the configured platforms in registration order.
func (p *Pipeline) Platforms() []domain.Platform {
	return append([]domain.Platform(nil), p.platforms...)
}

// Run executes one full cycle. The returned error is non-nil only when the run failed as
// a whole: listing, loading state, the new-document guard or the commit.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Phase: PhaseIdle, StartedAt: p.now()}
	log := p.logger.With("run_id", report.RunID)

	finish := func(phase Phase, err error) (Report, error) {
		report.Phase = phase
		report.Err = err
		report.FinishedAt = p.now()
		if err != nil {
			p.report(ctx, err, map[string]string{"phase": string(phase)})
			log.Error("run failed", "error", err)
		}
		if p.metrics != nil {
			p.metrics.ObserveRun(report.Summary())
		}
		return report, err
	}

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx)
		if err != nil {
			return finish(PhaseFailed, fmt.Errorf("acquire run lock: %w", err))
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release run lock failed", "error", err)
			}
		}()
	}

	report.Phase = PhaseListing
	listed, state, err := p.list(ctx)
	if err != nil {
		return finish(PhaseFailed, err)
	}
	report.Listed = len(listed)

	report.Phase = PhaseDiffing
	fresh, state := ledger.Diff(state, listed)
	retries := ledger.Retryable(state, listed, p.platforms, p.opts.MaxAttempts)
	report.New = len(fresh)
	report.Retried = len(retries)
	log.Info("diffed listing", "listed", len(listed), "new", len(fresh), "retry", len(retries))

	if queued := len(fresh) + len(retries); p.opts.MaxNew > 0 && queued > p.opts.MaxNew {
		return finish(PhaseFailed, fmt.Errorf("%w: %d new and %d retried, limit %d",
			domain.ErrTooManyNew, len(fresh), len(retries), p.opts.MaxNew))
	}

	report.Phase = PhaseProcessing
	work := make([]DocumentReport, 0, len(fresh)+len(retries))
	for _, doc := range fresh {
		work = append(work, DocumentReport{Document: doc, Targets: p.Platforms()})
	}
	for _, r := range retries {
		work = append(work, DocumentReport{Document: r.Document, Retry: true, Targets: r.Missing})
	}
	report.Documents = p.process(ctx, log, state, work)

	report.Exhausted = ledger.Exhausted(state, p.platforms, p.opts.MaxAttempts)
	if len(report.Exhausted) > 0 {
		log.Warn("documents out of attempts", "count", len(report.Exhausted), "ids", report.Exhausted)
	}

	if p.opts.DryRun {
		log.Info("dry run, ledger not written")
		return finish(PhaseDone, nil)
	}

	report.Phase = PhaseCommitting
	commitCtx, cancel := withTimeout(context.WithoutCancel(ctx), p.opts.CommitTimeout)
	defer cancel()
	if err := p.store.Save(commitCtx, state); err != nil {
		return finish(PhaseFailed, &domain.StateCommitError{Err: err})
	}
	report.Committed = true
	log.Info("ledger committed", "entries", len(state))

	return finish(PhaseDone, nil)
}

func (p *Pipeline) list(ctx context.Context) ([]domain.Document, ledger.State, error) {
	listCtx, cancel := withTimeout(ctx, p.opts.ListTimeout)
	defer cancel()

	listed, err := p.source.List(listCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	state, err := p.store.Load(listCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		state = ledger.New()
	}
	return listed, state, nil
}

// process handles documents with bounded concurrency and merges results into state.
// Documents not started before ctx is cancelled are skipped and stay unrecorded.
func (p *Pipeline) process(ctx context.Context, log *slog.Logger, state ledger.State, work []DocumentReport) []DocumentReport {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.opts.Concurrency)

	for i := range work {
		g.Go(func() error {
			item := &work[i]
			if err := ctx.Err(); err != nil {
				item.Err = fmt.Errorf("run interrupted: %w", err)
				return nil
			}

			p.processDocument(ctx, log.With("document", item.Document.ID), item)
			if item.Err != nil {
				return nil
			}

			mu.Lock()
			state.Target(item.Document.ID, item.Targets...)
			state.Record(item.Document.ID, p.now(), item.Succeeded()...)
			state.NoteAttempt(item.Document.ID, item.Document.DisplayName())
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return work
}

func (p *Pipeline) processDocument(ctx context.Context, log *slog.Logger, item *DocumentReport) {
	doc := item.Document
	tags := map[string]string{"document": doc.ID}

	fetchCtx, cancel := withTimeout(ctx, p.opts.FetchTimeout)
	raw, err := p.source.Fetch(fetchCtx, doc)
	cancel()
	if err != nil {
		item.Err = err
		if !domain.IsRetrieval(err) {
			item.Err = &domain.RetrievalError{Op: "fetch", Key: doc.ID, Err: err}
		}
		log.Warn("fetch failed, skipping", "error", item.Err)
		p.report(ctx, item.Err, tags)
		return
	}

	text := p.extract(ctx, log, item, raw)

	post, err := p.composer.Compose(ctx, doc, text)
	if err != nil {
		item.Err = fmt.Errorf("compose %s: %w", doc.ID, err)
		log.Warn("compose failed, skipping", "error", err)
		p.report(ctx, item.Err, tags)
		return
	}

	if p.renderer != nil && !p.opts.NoPost {
		renderCtx, cancel := withTimeout(ctx, p.opts.ExtractTimeout)
		media, err := p.renderer.Render(renderCtx, raw)
		cancel()
		if err != nil {
			log.Warn("preview render failed, posting without media", "error", err)
		} else {
			post.Media = media
		}
	}

	item.Outcomes = p.publish(ctx, log, post, item.Targets)
}

func (p *Pipeline) extract(ctx context.Context, log *slog.Logger, item *DocumentReport, raw []byte) string {
	extractCtx, cancel := withTimeout(ctx, p.opts.ExtractTimeout)
	defer cancel()

	text, err := p.extractor.Extract(extractCtx, raw)
	if err != nil {
		var extractErr *domain.ExtractionError
		if !errors.As(err, &extractErr) {
			extractErr = &domain.ExtractionError{DocumentID: item.Document.ID, Err: err}
		}
		item.ExtractErr = extractErr
		log.Warn("text extraction failed, composing from title", "error", extractErr)
		p.report(ctx, extractErr, map[string]string{"document": item.Document.ID})
		return ""
	}
	return text
}

// publish fans the post out to every target platform. A publisher that panics is
// reported as a failure for its platform only.
func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, post domain.PostContent, targets []domain.Platform) []domain.PublishOutcome {
	outcomes := make([]domain.PublishOutcome, len(targets))

	var g errgroup.Group
	for i, platform := range targets {
		g.Go(func() error {
			outcomes[i] = p.publishOne(ctx, post, platform)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if p.metrics != nil {
			p.metrics.ObserveOutcome(o)
		}
		if o.Succeeded() {
			log.Info("published", "platform", o.Platform, "url", o.PostURL)
			continue
		}
		log.Warn("publish failed", "platform", o.Platform, "reason", o.Err.Reason, "error", o.Err.Err)
		p.report(ctx, o.Err, map[string]string{
			"document": post.DocumentID,
			"platform": string(o.Platform),
			"reason":   string(o.Err.Reason),
		})
	}
	return outcomes
}

func (p *Pipeline) publishOne(ctx context.Context, post domain.PostContent, platform domain.Platform) (outcome domain.PublishOutcome) {
	if p.opts.NoPost {
		return domain.Success(platform, post.DocumentID, "")
	}

	pub, ok := p.publishers[platform]
	if !ok {
		return domain.Failure(platform, post.DocumentID, domain.ReasonRejected, fmt.Errorf("platform %s is not configured", platform))
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Failure(platform, post.DocumentID, domain.ReasonRejected, fmt.Errorf("publisher panic: %v", r))
		}
	}()

	publishCtx, cancel := withTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()

	outcome = pub.Publish(publishCtx, post)
	outcome.Platform = platform
	outcome.DocumentID = post.DocumentID
	return outcome
}

func (p *Pipeline) report(ctx context.Context, err error, tags map[string]string) {
	if p.reporter != nil {
		p.reporter.Report(ctx, err, tags)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
