// Package telemetry forwards contained failures and run counters to external sinks.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"PDFAnnouncer/internal/ports"
)

// Sentry reports errors to a Sentry project through its own hub.
type Sentry struct {
	hub *sentry.Hub
}

var _ ports.ErrorReporter = (*Sentry)(nil)

// NewSentry builds a reporter for dsn.
func NewSentry(dsn, environment string) (*Sentry, error) {
	return newSentry(sentry.ClientOptions{Dsn: dsn, Environment: environment})
}

func newSentry(opts sentry.ClientOptions) (*Sentry, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures err with the given tags.
func (s *Sentry) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

// Flush waits for queued events.
func (s *Sentry) Flush(timeout time.Duration) {
	s.hub.Flush(timeout)
}

// Nop drops every report.
type Nop struct{}

var _ ports.ErrorReporter = Nop{}

func (Nop) Report(context.Context, error, map[string]string) {}

func (Nop) Flush(time.Duration) {}
