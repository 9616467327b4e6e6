// Package ledger tracks which documents have already been announced and where.
package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"PDFAnnouncer/internal/domain"
)

// Record is the announcement history for one document.
type Record struct {
	FirstAnnouncedAt time.Time
	LastAttemptAt    time.Time
	Platforms        []domain.Platform
	// Targets are the platforms a publish round was aimed at. Only these are retried;
	// a platform configured later never reaches documents recorded before it.
	Targets  []domain.Platform
	Attempts int
	Title    string
	// Legacy marks entries imported from the link-text cache format; they carry no
	// per-platform detail and count as fully announced.
	Legacy bool
}

// Notified reports whether the document reached the platform.
func (r Record) Notified(platform domain.Platform) bool {
	return r.Legacy || slices.Contains(r.Platforms, platform)
}

type recordJSON struct {
	FirstAnnouncedAt time.Time         `json:"first_announced_at"`
	LastAttemptAt    time.Time         `json:"last_attempt_at,omitempty"`
	Platforms        []domain.Platform `json:"platforms"`
	Targets          []domain.Platform `json:"targets,omitempty"`
	Attempts         int               `json:"attempts,omitempty"`
	Title            string            `json:"title,omitempty"`
	Legacy           bool              `json:"legacy,omitempty"`
}

// MarshalJSON writes the record with a sorted, never-null platform list.
func (r Record) MarshalJSON() ([]byte, error) {
	platforms := r.Platforms
	if platforms == nil {
		platforms = []domain.Platform{}
	}
	return json.Marshal(recordJSON{
		FirstAnnouncedAt: r.FirstAnnouncedAt,
		LastAttemptAt:    r.LastAttemptAt,
		Platforms:        platforms,
		Targets:          r.Targets,
		Attempts:         r.Attempts,
		Title:            r.Title,
		Legacy:           r.Legacy,
	})
}

// UnmarshalJSON accepts both the record object and the legacy link-text string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		*r = Record{Title: title, Legacy: true}
		return nil
	}

	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	*r = Record{
		FirstAnnouncedAt: raw.FirstAnnouncedAt,
		LastAttemptAt:    raw.LastAttemptAt,
		Platforms:        normalize(raw.Platforms),
		Targets:          normalize(raw.Targets),
		Attempts:         raw.Attempts,
		Title:            raw.Title,
		Legacy:           raw.Legacy,
	}
	return nil
}

// State maps document identity to its announcement record. It is append-only: the
// tracker never removes entries.
type State map[string]Record

// New returns an empty state.
func New() State {
	return State{}
}

// Has reports whether the identity was ever recorded.
func (s State) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Record adds or merges an announcement. Platforms are unioned, so repeating a call
// with the same arguments leaves the state unchanged.
func (s State) Record(id string, at time.Time, platforms ...domain.Platform) {
	rec, ok := s[id]
	if !ok || rec.FirstAnnouncedAt.IsZero() {
		rec.FirstAnnouncedAt = at
	}
	if at.After(rec.LastAttemptAt) {
		rec.LastAttemptAt = at
	}
	rec.Platforms = normalize(append(slices.Clone(rec.Platforms), platforms...))
	s[id] = rec
}

// Target remembers that a publish round was aimed at the platforms.
func (s State) Target(id string, platforms ...domain.Platform) {
	rec := s[id]
	rec.Targets = normalize(append(slices.Clone(rec.Targets), platforms...))
	s[id] = rec
}

// NoteAttempt counts one publish round for the identity and remembers its title.
func (s State) NoteAttempt(id, title string) {
	rec := s[id]
	rec.Attempts++
	if rec.Title == "" {
		rec.Title = title
	}
	s[id] = rec
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, rec := range s {
		rec.Platforms = slices.Clone(rec.Platforms)
		rec.Targets = slices.Clone(rec.Targets)
		out[id] = rec
	}
	return out
}

// Diff returns the listed documents whose identity is absent from state, oldest first
// with ties broken by identity. The state is returned untouched.
func Diff(state State, listed []domain.Document) ([]domain.Document, State) {
	fresh := make([]domain.Document, 0)
	seen := make(map[string]struct{}, len(listed))
	for _, doc := range listed {
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		if !state.Has(doc.ID) {
			fresh = append(fresh, doc)
		}
	}
	SortDocuments(fresh)
	return fresh, state
}

// Retry is a recorded document that still misses some platforms.
type Retry struct {
	Document domain.Document
	Missing  []domain.Platform
}

// Retryable selects recorded documents that missed a still-configured platform they were
// targeted at and have been attempted fewer than maxAttempts times. Records without
// targets are never retried. A non-positive maxAttempts disables retries.
func Retryable(state State, listed []domain.Document, configured []domain.Platform, maxAttempts int) []Retry {
	if maxAttempts <= 0 || len(configured) == 0 {
		return nil
	}

	docs := slices.Clone(listed)
	SortDocuments(docs)

	var retries []Retry
	seen := map[string]struct{}{}
	for _, doc := range docs {
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}

		rec, ok := state[doc.ID]
		if !ok || rec.Legacy || rec.Attempts >= maxAttempts {
			continue
		}
		if missing := rec.missing(configured); len(missing) > 0 {
			retries = append(retries, Retry{Document: doc, Missing: missing})
		}
	}
	return retries
}

// Exhausted lists recorded documents that still miss platforms but have used up their
// attempts, so callers can surface them instead of dropping them silently.
func Exhausted(state State, configured []domain.Platform, maxAttempts int) []string {
	var ids []string
	for id, rec := range state {
		if rec.Legacy || maxAttempts <= 0 || rec.Attempts < maxAttempts {
			continue
		}
		if len(rec.missing(configured)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// missing lists the configured platforms the record targeted but never reached.
func (r Record) missing(configured []domain.Platform) []domain.Platform {
	var out []domain.Platform
	for _, p := range configured {
		if slices.Contains(r.Targets, p) && !r.Notified(p) {
			out = append(out, p)
		}
	}
	return out
}

// SortDocuments orders documents oldest first, then by identity.
func SortDocuments(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].ModifiedAt.Equal(docs[j].ModifiedAt) {
			return docs[i].ModifiedAt.Before(docs[j].ModifiedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func normalize(platforms []domain.Platform) []domain.Platform {
	if len(platforms) == 0 {
		return nil
	}
	out := slices.Clone(platforms)
	slices.Sort(out)
	return slices.Compact(out)
}
