package tasks

import (
	"net/url"
	"strings"

	"github.com/desertthunder/videofetcher/internal/shared"
)

// platform describes a short-video site whose share links hide the item id in the query string.
type platform struct {
	domain    string
	canonical string
}

var platforms = []platform{
	{
		domain:    "douyin.com",
		canonical: "https://www.douyin.com/video/",
	},
	{
		domain:    "tiktok.com",
		canonical: "https://www.tiktok.com/video/",
	},
}

const itemIDParam = "modal_id"

// Normalize rewrites share links into the canonical per-item URL the extractor understands.
// Unrecognized input is returned trimmed but otherwise unchanged.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for _, p := range platforms {
		if !shared.HostMatches(s, p.domain) {
			continue
		}
		if u, err := url.Parse(s); err == nil {
			if id := strings.TrimSpace(u.Query().Get(itemIDParam)); id != "" {
				return p.canonical + url.PathEscape(id)
			}
		}
		return s
	}
	return s
}

// NormalizeBatch splits newline-separated input, drops blank lines and normalizes the rest.
// Order and duplicates are preserved so the store can count what it skips.
func NormalizeBatch(lines []string) []string {
	var out []string
	for _, chunk := range lines {
		for _, line := range strings.Split(chunk, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, Normalize(line))
			}
		}
	}
	return out
}
