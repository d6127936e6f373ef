// package services defines the [Extractor] gateway to the external media extractor
// and the HTTP client for the task API.
package services

import (
	"context"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
)

// Extractor is the boundary to the external media extractor.
//
// Implementations translate the extractor's native failures into [*ExtractError] values.
// Cancelling ctx aborts the underlying process and yields [KindCancelled].
type Extractor interface {
	// Probe fetches metadata for url without downloading media.
	Probe(ctx context.Context, url string, net models.NetworkConfig) (*models.Metadata, error)

	// Fetch downloads the media described by req.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)

	// Name identifies the implementation in logs.
	Name() string
}

// CookieProber reads a browser's cookie store through the extractor.
type CookieProber interface {
	BrowserCookies(ctx context.Context, browser, siteURL string) ([]Cookie, error)
}

// FetchRequest carries everything a single download attempt needs.
type FetchRequest struct {
	URL            string
	Network        models.NetworkConfig
	Format         string
	OutputTemplate string
	// ArchivePath enables the extractor's download archive when set.
	ArchivePath string
	Progress    func(ProgressEvent)

	AudioOnly           bool
	AudioFormat         string
	WriteSubs           bool
	SubLangs            []string
	WriteThumbnail      bool
	EmbedThumbnail      bool
	EmbedMetadata       bool
	DownloadPlaylist    bool
	RateLimit           string
	Retries             int
	FragmentRetries     int
	ConcurrentFragments int
}

// FetchResult lists the files the extractor reported.
type FetchResult struct {
	Paths []string
}

// ProgressEvent is a single progress tick from the extractor.
type ProgressEvent struct {
	Status          string // "downloading", "finished", "post_processing" and similar
	DownloadedBytes int64
	TotalBytes      int64
	Speed           string
	ETA             string
	Filename        string
	Elapsed         time.Duration
}

// Percent returns 0 when the total is unknown.
func (e ProgressEvent) Percent() float64 {
	if e.TotalBytes <= 0 {
		return 0
	}
	return float64(e.DownloadedBytes) / float64(e.TotalBytes) * 100
}
