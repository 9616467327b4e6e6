package domain

import (
	"fmt"
	"strings"
)

// Platform names a social network an announcement can be delivered to.
type Platform string

const (
	PlatformMastodon Platform = "mastodon"
	PlatformTwitter  Platform = "twitter"
	PlatformBluesky  Platform = "bluesky"
	PlatformTelegram Platform = "telegram"
)

// ParsePlatform maps a config string onto a known platform.
func ParsePlatform(value string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(value))); p {
	case PlatformMastodon, PlatformTwitter, PlatformBluesky, PlatformTelegram:
		return p, nil
	case "x":
		return PlatformTwitter, nil
	default:
		return "", fmt.Errorf("unknown platform %q", value)
	}
}

// PublishOutcome is the result of one publish attempt for a (document, platform) pair.
type PublishOutcome struct {
	Platform   Platform
	DocumentID string
	PostURL    string
	Err        *PublishError
}

// Succeeded reports whether the platform accepted the post.
func (o PublishOutcome) Succeeded() bool {
	return o.Err == nil
}

// Success builds a successful outcome.
func Success(platform Platform, documentID, postURL string) PublishOutcome {
	return PublishOutcome{Platform: platform, DocumentID: documentID, PostURL: postURL}
}

// Failure builds a failed outcome.
func Failure(platform Platform, documentID string, reason FailureReason, err error) PublishOutcome {
	return PublishOutcome{
		Platform:   platform,
		DocumentID: documentID,
		Err:        &PublishError{Platform: platform, Reason: reason, Err: err},
	}
}
