package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/videofetcher/internal/models"
)

// infoDict is the subset of the extractor's JSON info dictionary we read.
type infoDict struct {
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	ViewCount  int64   `json:"view_count"`
	UploadDate string  `json:"upload_date"`
	WebpageURL string  `json:"webpage_url"`
	Filepath   string  `json:"filepath"`
	Filename   string  `json:"_filename"`

	Formats []struct {
		Height int    `json:"height"`
		Ext    string `json:"ext"`
		VCodec string `json:"vcodec"`
		ACodec string `json:"acodec"`
	} `json:"formats"`

	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
		Filename string `json:"_filename"`
	} `json:"requested_downloads"`

	Entries []*infoDict `json:"entries"`
}

func parseInfo(data string) (*infoDict, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	// The JSON document is printed on its own line; other lines may be warnings.
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info infoDict
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return nil, fmt.Errorf("failed to parse extractor metadata: %w", err)
		}
		return &info, nil
	}
	return nil, fmt.Errorf("extractor returned no metadata")
}

// metadata summarizes the info dictionary.
func (d *infoDict) metadata() *models.Metadata {
	m := &models.Metadata{
		Title:      d.Title,
		Uploader:   d.Uploader,
		Duration:   d.Duration,
		ViewCount:  d.ViewCount,
		UploadDate: d.UploadDate,
		WebpageURL: d.WebpageURL,
	}

	heights := map[int]struct{}{}
	videoExts := map[string]struct{}{}
	audioExts := map[string]struct{}{}
	for _, f := range d.Formats {
		if f.Height > 0 {
			heights[f.Height] = struct{}{}
		}
		if f.Ext == "" {
			continue
		}
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		if hasVideo {
			videoExts[f.Ext] = struct{}{}
		} else if hasAudio {
			audioExts[f.Ext] = struct{}{}
		}
	}

	for h := range heights {
		m.AvailableHeights = append(m.AvailableHeights, h)
	}
	slices.Sort(m.AvailableHeights)
	slices.Reverse(m.AvailableHeights)
	m.VideoExts = sortedKeys(videoExts)
	m.AudioExts = sortedKeys(audioExts)
	return m
}

// paths collects every reported output path, recursing into playlist entries.
func (d *infoDict) paths() []string {
	var out []string
	var walk func(n *infoDict)
	walk = func(n *infoDict) {
		if n == nil {
			return
		}
		out = append(out, n.Filepath, n.Filename)
		for _, rd := range n.RequestedDownloads {
			out = append(out, rd.Filepath, rd.Filename)
		}
		for _, e := range n.Entries {
			walk(e)
		}
	}
	walk(d)
	return dedupePaths(out)
}

// reportedPaths extracts paths from the fetch output: JSON info lines and
// plain path lines printed after post-processing.
func reportedPaths(stdout string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "{"):
			var info infoDict
			if err := json.Unmarshal([]byte(line), &info); err == nil {
				out = append(out, info.paths()...)
			}
		case filepath.IsAbs(line) || strings.ContainsRune(line, filepath.Separator):
			out = append(out, line)
		}
	}
	return dedupePaths(out)
}

func dedupePaths(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
