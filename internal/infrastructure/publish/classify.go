// Package publish holds one Publisher per social platform.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"PDFAnnouncer/internal/domain"
)

const userAgent = "PDFAnnouncer/1.0"

// StatusError is a non-2xx answer from a platform API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// ReasonForStatus maps an HTTP status onto a failure reason.
func ReasonForStatus(code int) domain.FailureReason {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ReasonAuth
	case code == http.StatusTooManyRequests:
		return domain.ReasonRateLimit
	case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return domain.ReasonTransient
	default:
		return domain.ReasonRejected
	}
}

// Classify maps any publish error onto a failure reason.
func Classify(err error) domain.FailureReason {
	var status *StatusError
	if errors.As(err, &status) {
		return ReasonForStatus(status.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ReasonTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ReasonTransient
	}
	return domain.ReasonRejected
}

func fail(platform domain.Platform, post domain.PostContent, err error) domain.PublishOutcome {
	return domain.Failure(platform, post.DocumentID, Classify(err), err)
}

// doJSON sends req and decodes a JSON answer into out (when non-nil).
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
