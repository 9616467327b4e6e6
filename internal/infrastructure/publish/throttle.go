package publish

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

// Throttled spaces out posts to one platform.
type Throttled struct {
	next    ports.Publisher
	limiter *rate.Limiter
}

var _ ports.Publisher = (*Throttled)(nil)

// NewThrottled allows one post per interval with the given burst.
func NewThrottled(next ports.Publisher, limiter *rate.Limiter) *Throttled {
	return &Throttled{next: next, limiter: limiter}
}

// Name implements ports.Publisher.
func (t *Throttled) Name() domain.Platform { return t.next.Name() }

// Publish waits for a token; running out of time is a transient failure.
func (t *Throttled) Publish(ctx context.Context, post domain.PostContent) domain.PublishOutcome {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.Failure(t.next.Name(), post.DocumentID, domain.ReasonTransient, fmt.Errorf("rate limiter: %w", err))
	}
	return t.next.Publish(ctx, post)
}
