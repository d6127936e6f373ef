package tasks

import (
	"os"
	"path/filepath"
	"strings"
)

var mediaExts = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".webm": {}, ".mov": {}, ".avi": {}, ".flv": {},
	".m4a": {}, ".mp3": {}, ".wav": {}, ".flac": {}, ".opus": {}, ".aac": {}, ".ogg": {},
}

var sidecarExts = map[string]struct{}{
	".part": {}, ".ytdl": {}, ".json": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
	".srt": {}, ".vtt": {}, ".ass": {}, ".lrc": {},
	".txt": {}, ".description": {}, ".html": {}, ".htm": {},
}

func extOf(path string) string { return strings.ToLower(filepath.Ext(path)) }

// IsMedia reports whether path has a known audio or video container extension.
func IsMedia(path string) bool {
	_, ok := mediaExts[extOf(path)]
	return ok
}

func isSidecar(path string) bool {
	_, ok := sidecarExts[extOf(path)]
	return ok
}

// ResolveArtifact picks the final output of a run.
//
// Reported paths win when any exist on disk; otherwise the largest media file in taskDir,
// then the largest file that is not a known sidecar. ok is false when nothing qualifies.
func ResolveArtifact(taskDir string, reported []string) (string, bool) {
	if path, ok := largest(reported, func(string) bool { return true }); ok {
		return path, true
	}

	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return "", false
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(taskDir, e.Name()))
	}

	if path, ok := largest(files, IsMedia); ok {
		return path, true
	}
	return largest(files, func(p string) bool { return !isSidecar(p) })
}

// largest returns the biggest existing regular file among paths accepted by keep.
func largest(paths []string, keep func(string) bool) (string, bool) {
	var (
		best string
		size int64 = -1
	)
	for _, p := range paths {
		if p == "" || !keep(p) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Size() > size {
			best, size = p, info.Size()
		}
	}
	return best, size >= 0
}
