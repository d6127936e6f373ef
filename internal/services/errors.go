package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/videofetcher/internal/shared"
)

// Kind classifies extractor failures for the orchestrator.
type Kind int

const (
	KindOther Kind = iota
	KindAuthExpired
	KindNotFound
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// ExtractError is returned by every [Extractor] method.
type ExtractError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// KindOf reports the [Kind] of err, [KindOther] for foreign errors.
func KindOf(err error) Kind {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindOther
}

// NewExtractError wraps err with kind.
func NewExtractError(kind Kind, op string, err error) *ExtractError {
	return &ExtractError{Kind: kind, Op: op, Err: err}
}

var notFoundMarkers = []string{
	"http error 404",
	"unsupported url",
	"video unavailable",
	"this video is unavailable",
	"has been removed",
	"private video",
	"does not exist",
}

// classify maps extractor output to a [Kind]. The auth-expired signal is
// platform specific: it only applies to douyin URLs.
func classify(ctx context.Context, url, output string, err error) Kind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	msg := strings.ToLower(output)
	if err != nil {
		msg += " " + strings.ToLower(err.Error())
	}

	if strings.Contains(msg, "fresh cookies") && strings.Contains(msg, "douyin") && IsDouyinURL(url) {
		return KindAuthExpired
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(msg, marker) {
			return KindNotFound
		}
	}
	return KindOther
}

// IsDouyinURL reports whether url points at douyin.
func IsDouyinURL(url string) bool {
	return shared.HostMatches(url, "douyin.com")
}
