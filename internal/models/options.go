package models

import (
	"fmt"
	"strings"
	"time"
)

// Options are the per-submission download settings.
type Options struct {
	AudioOnly           bool   `json:"audio_only,omitempty"`
	AudioFormat         string `json:"audio_format,omitempty"`
	WriteSubs           bool   `json:"write_subs,omitempty"`
	SubLangs            string `json:"sub_langs,omitempty"`
	WriteThumbnail      bool   `json:"write_thumbnail,omitempty"`
	EmbedThumbnail      bool   `json:"embed_thumbnail,omitempty"`
	EmbedMetadata       bool   `json:"embed_metadata,omitempty"`
	DownloadPlaylist    bool   `json:"download_playlist,omitempty"`
	Proxy               string `json:"proxy,omitempty"`
	CookieFile          string `json:"cookie_file,omitempty"`
	CookiesFromBrowser  string `json:"cookies_from_browser,omitempty"`
	RateLimit           string `json:"rate_limit,omitempty"`
	Retries             int    `json:"retries,omitempty"`
	FragmentRetries     int    `json:"fragment_retries,omitempty"`
	ConcurrentFragments int    `json:"concurrent_fragments,omitempty"`
	UseDownloadArchive  bool   `json:"use_download_archive,omitempty"`
}

// WithDefaults fills unset numeric and format fields.
func (o Options) WithDefaults() Options {
	if strings.TrimSpace(o.AudioFormat) == "" {
		o.AudioFormat = "mp3"
	}
	if o.Retries <= 0 {
		o.Retries = 10
	}
	if o.FragmentRetries <= 0 {
		o.FragmentRetries = 10
	}
	if o.ConcurrentFragments <= 0 {
		o.ConcurrentFragments = 1
	}
	return o
}

// SubtitleLangs splits SubLangs on commas, dropping blanks.
func (o Options) SubtitleLangs() []string {
	var langs []string
	for _, l := range strings.Split(o.SubLangs, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// NetworkConfig is one way of reaching the origin platform.
type NetworkConfig struct {
	Proxy              string `json:"proxy,omitempty"`
	CookieFile         string `json:"cookie_file,omitempty"`
	CookiesFromBrowser string `json:"cookies_from_browser,omitempty"`
}

// Label describes the config for logs.
func (n NetworkConfig) Label() string {
	var parts []string
	switch {
	case n.CookieFile != "":
		parts = append(parts, "cookie-file")
	case n.CookiesFromBrowser != "":
		parts = append(parts, "browser:"+n.CookiesFromBrowser)
	default:
		parts = append(parts, "no-cookies")
	}
	if n.Proxy != "" {
		parts = append(parts, "proxy")
	}
	return strings.Join(parts, "+")
}

// Metadata is the probe result for a URL.
type Metadata struct {
	Title            string   `json:"title"`
	Uploader         string   `json:"uploader,omitempty"`
	Duration         float64  `json:"duration,omitempty"`
	ViewCount        int64    `json:"view_count,omitempty"`
	UploadDate       string   `json:"upload_date,omitempty"`
	WebpageURL       string   `json:"webpage_url,omitempty"`
	AvailableHeights []int    `json:"available_heights,omitempty"`
	VideoExts        []string `json:"video_exts,omitempty"`
	AudioExts        []string `json:"audio_exts,omitempty"`
}

// TaskRun is a finished run stored in the history database.
type TaskRun struct {
	RunID      string
	TaskID     string
	Owner      string
	URL        string
	Title      string
	Status     Status
	Error      string
	OutputPath string
	OutputSize int64
	Quality    string
	StartedAt  time.Time
	FinishedAt time.Time
	Created    time.Time
}

// NewTaskRun captures the terminal state of a task.
func NewTaskRun(id string, v TaskView) *TaskRun {
	return &TaskRun{
		RunID:      id,
		TaskID:     v.ID,
		Owner:      v.Owner,
		URL:        v.SourceURL,
		Title:      v.Title,
		Status:     v.Status,
		Error:      v.Error,
		OutputPath: v.OutputPath,
		OutputSize: v.OutputSize,
		Quality:    v.Quality,
		StartedAt:  v.StartedAt,
		FinishedAt: v.FinishedAt,
		Created:    time.Now().UTC(),
	}
}

func (r *TaskRun) ID() string           { return r.RunID }
func (r *TaskRun) CreatedAt() time.Time { return r.Created }

// Validate requires identity and a terminal status.
func (r *TaskRun) Validate() error {
	if r.RunID == "" || r.TaskID == "" || r.Owner == "" {
		return fmt.Errorf("run id, task id and owner are required")
	}
	if !r.Status.Terminal() {
		return fmt.Errorf("run status %q is not terminal", r.Status)
	}
	return nil
}
