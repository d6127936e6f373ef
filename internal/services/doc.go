// Package services wraps the external processes and servers the task engine talks to.
//
// # Extractor
//
// [Extractor] is the boundary to the media extractor. [YTDLPService] implements it by driving
// the yt-dlp executable through go-ytdlp: Probe runs a metadata-only pass and Fetch downloads
// into an output template while streaming [ProgressEvent] values to the caller.
//
// Failures come back as [*ExtractError] with a [Kind]:
//   - [KindAuthExpired] : douyin asked for fresh cookies
//   - [KindNotFound] : the extractor rejected the URL or the page is gone
//   - [KindCancelled] : the context ended before the extractor finished
//   - [KindOther] : everything else, carrying the last lines of the extractor's stderr
//
// [CachedExtractor] keeps probe results in a ristretto cache and collapses concurrent probes
// for the same URL and network config.
//
// # Cookies
//
// [DetectCookieSource] walks the installed browsers and picks the first whose cookie store
// holds the target site's auth cookie. [ParseNetscapeCookies] reads the jar format the
// extractor writes.
//
// # API Client
//
// [APIService] calls a running task server on behalf of the CLI and TUI. GET requests retry
// transport failures with exponential backoff; non-2xx responses surface as
// [shared.ErrAPIRequest] wrapping the server's error message.
package services
