package tasks

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

const (
	maxTitleRunes    = 200
	maxDownloadRunes = 80
	fallbackTitle    = "video"
)

var (
	unsafeTitleChars    = regexp.MustCompile(`[/\\:*?"<>|]`)
	unsafeDownloadChars = regexp.MustCompile("[\\\\/:*?\"<>|#%&{}$!`'@+=;,]")
	whitespace          = regexp.MustCompile(`\s+`)
)

// FormatSelector maps a quality name to an extractor format expression.
// Unknown names select the best available streams.
func FormatSelector(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "1080p":
		return heightSelector(1080)
	case "720p":
		return heightSelector(720)
	case "480p":
		return heightSelector(480)
	case "audio":
		return "bestaudio/best"
	default:
		return "bestvideo+bestaudio/best"
	}
}

func heightSelector(h int) string {
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", h, h)
}

// SanitizeTitle makes title safe to use as a file name stem.
func SanitizeTitle(title string) string {
	s := unsafeTitleChars.ReplaceAllString(title, "_")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = strings.TrimSpace(shared.Truncate(s, maxTitleRunes))
	if s == "" {
		return fallbackTitle
	}
	return s
}

// DownloadName builds the file name offered to a browser for a completed task:
// "<title>_<id><ext>", restricted to characters safe in Content-Disposition headers.
func DownloadName(v models.TaskView) string {
	ext := filepath.Ext(v.OutputPath)
	if ext == "" {
		ext = ".bin"
	}
	stem := strings.TrimSuffix(filepath.Base(v.OutputPath), filepath.Ext(v.OutputPath))
	if v.Title != "" {
		stem = v.Title
	}
	stem = unsafeDownloadChars.ReplaceAllString(stem, "_")
	stem = strings.TrimSpace(whitespace.ReplaceAllString(stem, " "))
	if stem == "" || stem == "." {
		stem = fallbackTitle
	}

	suffix := "_" + v.ID + ext
	budget := maxDownloadRunes - len([]rune(suffix))
	if budget < 1 {
		budget = 1
	}
	return strings.TrimSpace(shared.Truncate(stem, budget)) + suffix
}
