package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

const progressInterval = 250 * time.Millisecond

// YTDLPService implements [Extractor] and [CookieProber] by driving the yt-dlp executable.
type YTDLPService struct {
	binary string
	logger *log.Logger
}

// NewYTDLPService creates the gateway. An empty binary resolves yt-dlp from PATH.
func NewYTDLPService(binary string, logger *log.Logger) *YTDLPService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLPService{binary: binary, logger: logger}
}

func (s *YTDLPService) Name() string { return "yt-dlp" }

func (s *YTDLPService) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoCallHome().
		Newline()
	if s.binary != "" {
		cmd.SetExecutable(s.binary)
	}
	return cmd
}

// networkArgs renders a network config as raw flags.
func networkArgs(n models.NetworkConfig) []string {
	var args []string
	if n.Proxy != "" {
		args = append(args, "--proxy", n.Proxy)
	}
	switch {
	case n.CookieFile != "":
		args = append(args, "--cookies", n.CookieFile)
	case n.CookiesFromBrowser != "":
		args = append(args, "--cookies-from-browser", n.CookiesFromBrowser)
	}
	return args
}

// Probe runs the extractor in metadata-only mode.
func (s *YTDLPService) Probe(ctx context.Context, url string, net models.NetworkConfig) (*models.Metadata, error) {
	cmd := s.command().
		SkipDownload().
		DumpSingleJSON()

	args := append(networkArgs(net), "--no-playlist", url)
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return nil, s.wrap(ctx, "probe", url, res, err)
	}

	info, err := parseInfo(res.Stdout)
	if err != nil {
		return nil, NewExtractError(KindOther, "probe", err)
	}
	return info.metadata(), nil
}

// Fetch downloads req.URL into req.OutputTemplate.
func (s *YTDLPService) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	cmd := s.command().
		Format(req.Format).
		Output(req.OutputTemplate).
		MergeOutputFormat("mp4").
		Retries(strconv.Itoa(req.Retries)).
		FragmentRetries(strconv.Itoa(req.FragmentRetries))

	if req.ConcurrentFragments > 0 {
		cmd.ConcurrentFragments(req.ConcurrentFragments)
	}
	if req.RateLimit != "" {
		cmd.LimitRate(req.RateLimit)
	}
	if req.EmbedThumbnail {
		cmd.EmbedThumbnail()
	}

	if req.Progress != nil {
		cmd.ProgressFunc(progressInterval, func(prog ytdlp.ProgressUpdate) {
			req.Progress(progressEvent(prog))
		})
	}

	args := append(networkArgs(req.Network), fetchArgs(req)...)
	args = append(args, req.URL)

	s.logger.Debug("starting extractor", "url", req.URL, "network", req.Network.Label(), "format", req.Format)
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return nil, s.wrap(ctx, "fetch", req.URL, res, err)
	}

	return &FetchResult{Paths: reportedPaths(res.Stdout)}, nil
}

// fetchArgs renders the passthrough options as raw flags.
func fetchArgs(req FetchRequest) []string {
	args := []string{
		"--no-simulate",
		"--progress",
		"--print", "after_move:filepath",
	}
	if req.ArchivePath != "" {
		args = append(args, "--download-archive", req.ArchivePath)
	}
	if !req.DownloadPlaylist {
		args = append(args, "--no-playlist")
	}
	if req.WriteSubs {
		args = append(args, "--write-subs", "--write-auto-subs")
		if len(req.SubLangs) > 0 {
			args = append(args, "--sub-langs", strings.Join(req.SubLangs, ","))
		}
	}
	if req.WriteThumbnail {
		args = append(args, "--write-thumbnail")
	}
	if req.EmbedMetadata {
		args = append(args, "--embed-metadata")
	}
	if req.AudioOnly {
		format := req.AudioFormat
		if format == "" {
			format = "mp3"
		}
		args = append(args, "--extract-audio", "--audio-format", format)
	}
	return args
}

// BrowserCookies loads browser's cookie store by asking the extractor to export it.
func (s *YTDLPService) BrowserCookies(ctx context.Context, browser, siteURL string) ([]Cookie, error) {
	dir, err := os.MkdirTemp("", "vf-cookies-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	jar := filepath.Join(dir, "cookies.txt")
	cmd := s.command().SkipDownload()
	res, runErr := cmd.Run(ctx, "--cookies-from-browser", browser, "--cookies", jar, "--no-playlist", siteURL)

	f, err := os.Open(jar)
	if err != nil {
		if runErr != nil {
			return nil, s.wrap(ctx, "cookies", siteURL, res, runErr)
		}
		return nil, NewExtractError(KindOther, "cookies", fmt.Errorf("no cookie jar written for %s", browser))
	}
	defer f.Close()
	return ParseNetscapeCookies(f)
}

func (s *YTDLPService) wrap(ctx context.Context, op, url string, res *ytdlp.Result, err error) error {
	output := ""
	if res != nil {
		output = res.Stderr
	}
	kind := classify(ctx, url, output, err)
	if kind == KindCancelled {
		return NewExtractError(kind, op, context.Canceled)
	}

	detail := shared.CleanText(lastLines(output, 3))
	if detail == "" {
		detail = shared.CleanText(err.Error())
	}
	s.logger.Debug("extractor failed", "op", op, "url", url, "kind", kind, "err", err)
	return NewExtractError(kind, op, errors.New(detail))
}

func progressEvent(prog ytdlp.ProgressUpdate) ProgressEvent {
	ev := ProgressEvent{
		Status:          fmt.Sprint(prog.Status),
		DownloadedBytes: int64(prog.DownloadedBytes),
		TotalBytes:      int64(prog.TotalBytes),
		Filename:        prog.Filename,
		Elapsed:         prog.Duration(),
	}
	if secs := ev.Elapsed.Seconds(); secs > 0 && ev.DownloadedBytes > 0 {
		ev.Speed = shared.FormatSize(int64(float64(ev.DownloadedBytes)/secs)) + "/s"
	}
	if eta := prog.ETA(); eta > 0 {
		ev.ETA = formatETA(eta)
	}
	return ev
}

func formatETA(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " ")
}
