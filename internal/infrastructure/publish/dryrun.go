package publish

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

// DryRun prints what would have been posted and reports success.
type DryRun struct {
	platform domain.Platform
	out      io.Writer
	mu       *sync.Mutex
}

var _ ports.Publisher = (*DryRun)(nil)

// NewDryRun stands in for platform; writers shared between instances should share mu.
func NewDryRun(platform domain.Platform, out io.Writer, mu *sync.Mutex) *DryRun {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &DryRun{platform: platform, out: out, mu: mu}
}

// Name implements ports.Publisher.
func (d *DryRun) Name() domain.Platform { return d.platform }

// Publish writes the variant text instead of posting it.
func (d *DryRun) Publish(_ context.Context, post domain.PostContent) domain.PublishOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := color.New(color.FgCyan, color.Bold).Sprintf("[%s]", d.platform)
	fmt.Fprintf(d.out, "%s would have posted: %q\n", label, post.TextFor(d.platform).Text)
	if post.Media != nil {
		fmt.Fprintf(d.out, "%s with %s attachment (%d bytes)\n", label, post.Media.MIMEType, len(post.Media.Data))
	}
	return domain.Success(d.platform, post.DocumentID, "")
}
