package downloader

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	yt2convert "github.com/hossez/yt2convert"
)

// sourceMetadata is the subset of yt-dlp's -J output the pipeline cares about.
type sourceMetadata struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Uploader   string `json:"uploader"`
	UploadDate string `json:"upload_date"`
}

func parseMetadata(data []byte) (*sourceMetadata, error) {
	var meta sourceMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("malformed metadata output: %v", err)
	}
	if meta.Title == "" {
		meta.Title = meta.ID
	}
	return &meta, nil
}

var (
	progressPattern = regexp.MustCompile(`^\[download\]\s+([0-9.]+)%`)
	// "[download] Destination: /path/to/file.webm"
	destinationPattern = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	// `[Merger] Merging formats into "/path/to/file.mp4"`
	mergerPattern = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
)

// parseProgressLine extracts the percentage from a "--newline" progress line.
func parseProgressLine(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// parseDestinationLine extracts the output path the tool reports it is writing
// to. Later lines win, so a merged file replaces the per-stream destinations.
func parseDestinationLine(line string) (string, bool) {
	if m := mergerPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := destinationPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// Known stderr fragments, most specific first. yt-dlp has no machine-readable
// error channel, so classification is substring matching on its messages.
var stderrClasses = []struct {
	fragment string
	err      error
}{
	{"is not a valid URL", yt2convert.ErrInvalidInput},
	{"Unsupported URL", yt2convert.ErrInvalidInput},
	{"Video unavailable", yt2convert.ErrUnavailable},
	{"Private video", yt2convert.ErrUnavailable},
	{"This video is not available", yt2convert.ErrUnavailable},
	{"Sign in to confirm your age", yt2convert.ErrUnavailable},
	{"The uploader has not made this video available", yt2convert.ErrUnavailable},
	{"Unable to download", yt2convert.ErrNetwork},
	{"unable to download", yt2convert.ErrNetwork},
	{"Connection refused", yt2convert.ErrNetwork},
	{"timed out", yt2convert.ErrNetwork},
	{"Temporary failure in name resolution", yt2convert.ErrNetwork},
	{"getaddrinfo failed", yt2convert.ErrNetwork},
}

func classifyStderr(stderr string) error {
	for _, class := range stderrClasses {
		if strings.Contains(stderr, class.fragment) {
			return class.err
		}
	}
	return nil
}

func firstStderrLine(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "no error output"
}
