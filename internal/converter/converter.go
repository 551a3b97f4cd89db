// Package converter adapts the external ffmpeg binary to the Converter contract.
package converter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
)

const (
	ffmpegName  = "ffmpeg"
	ffprobeName = "ffprobe"

	killWaitDelay = 5 * time.Second
)

// Resolver locates an external tool by name.
type Resolver interface {
	Resolve(name string) (string, error)
}

type Converter struct {
	resolver Resolver
	log      *zap.SugaredLogger
	// KeepRaw leaves the downloaded raw artifact in place after a successful
	// conversion instead of deleting it.
	KeepRaw bool
}

func New(resolver Resolver) *Converter {
	return &Converter{
		resolver: resolver,
		log:      zap.S().Named("converter"),
	}
}

// Convert transcodes the raw artifact into desc.Format inside desc.DestDir.
// Output is written under a temporary dot-prefixed name and only renamed to the
// final name once ffmpeg has exited successfully, so a crash or cancellation
// never leaves a half-written file that looks finished.
func (c *Converter) Convert(ctx context.Context, raw *yt2convert.RawArtifact, desc yt2convert.JobDescriptor, progress yt2convert.ProgressFunc) (*yt2convert.OutputFile, error) {
	ffmpeg, err := c.resolver.Resolve(ffmpegName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(desc.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create destination: %v", yt2convert.ErrConversion, err)
	}

	outName := outputName(raw, desc.Format)
	outPath := filepath.Join(desc.DestDir, outName)
	partialPath := filepath.Join(desc.DestDir, "."+outName+".partial")

	durationUS := c.probeDuration(ctx, raw.Path)

	args, err := convertArgs(raw.Path, partialPath, desc)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.WaitDelay = killWaitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", yt2convert.ErrConversion, err)
	}

	c.log.Infow("starting conversion", "input", raw.Path, "output", outPath, "format", desc.Format)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(partialPath)
		return nil, classifyConvertError(ctx, err, stderr.String())
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if us, ok := parseProgressValue(scanner.Text()); ok && progress != nil && durationUS > 0 {
			pct := float64(us) / float64(durationUS) * 100
			if pct > 100 {
				pct = 100
			}
			progress(pct)
		}
	}

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(partialPath)
		return nil, classifyConvertError(ctx, err, stderr.String())
	}

	if err := os.Rename(partialPath, outPath); err != nil {
		_ = os.Remove(partialPath)
		return nil, fmt.Errorf("%w: cannot finalize output: %v", yt2convert.ErrConversion, err)
	}
	if progress != nil {
		progress(100)
	}

	if !c.KeepRaw {
		if err := os.Remove(raw.Path); err != nil && !os.IsNotExist(err) {
			c.log.Warnw("could not remove raw artifact", "path", raw.Path, "error", err)
		}
	}

	return &yt2convert.OutputFile{Path: outPath}, nil
}

// probeDuration returns the input duration in microseconds, or 0 if it cannot
// be determined. Progress reporting degrades gracefully without it.
func (c *Converter) probeDuration(ctx context.Context, input string) int64 {
	ffprobe, err := c.resolver.Resolve(ffprobeName)
	if err != nil {
		c.log.Debugw("ffprobe unavailable, converting without progress", "error", err)
		return 0
	}
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		input,
	)
	cmd.WaitDelay = killWaitDelay
	out, err := cmd.Output()
	if err != nil {
		c.log.Debugw("duration probe failed", "error", err)
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return int64(seconds * 1e6)
}

// convertArgs builds the ffmpeg invocation. The muxer is forced with -f because
// the temporary output name does not end in the real extension.
func convertArgs(input, output string, desc yt2convert.JobDescriptor) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-progress", "pipe:1", "-nostats", "-i", input}
	switch desc.Format {
	case yt2convert.FormatMP3:
		enc, ok := yt2convert.AudioQuality(desc.Format, desc.Quality)
		if !ok {
			return nil, fmt.Errorf("%w: %s %q", yt2convert.ErrUnsupportedFormat, desc.Format, desc.Quality)
		}
		args = append(args, "-vn", "-map", "0:a", "-c:a", enc.Codec, "-b:a", enc.Bitrate, "-f", "mp3")
	case yt2convert.FormatWAV:
		enc, ok := yt2convert.AudioQuality(desc.Format, desc.Quality)
		if !ok {
			return nil, fmt.Errorf("%w: %s %q", yt2convert.ErrUnsupportedFormat, desc.Format, desc.Quality)
		}
		args = append(args, "-vn", "-map", "0:a", "-c:a", enc.Codec, "-ar", enc.SampleRate, "-f", "wav")
	case yt2convert.FormatMP4:
		// The downloader already merged into mp4; remux without re-encoding.
		args = append(args, "-c", "copy", "-movflags", "+faststart", "-f", "mp4")
	default:
		return nil, fmt.Errorf("%w: %q", yt2convert.ErrUnsupportedFormat, string(desc.Format))
	}
	return append(args, output), nil
}

// outputName derives the final file name from the source title, falling back to
// the video ID when sanitizing strips everything.
func outputName(raw *yt2convert.RawArtifact, format yt2convert.Format) string {
	base := sanitizeFilename(raw.Title)
	if base == "" {
		base = raw.VideoID
	}
	if base == "" {
		base = "yt_" + time.Now().Format("20060102_150405")
	}
	return base + "." + format.Ext()
}

// sanitizeFilename keeps letters, digits and a small set of punctuation, the
// same rule the converter's file naming has always used.
func sanitizeFilename(name string) string {
	keep := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune(" .-_()", r):
			return r
		default:
			return -1
		}
	}
	return strings.TrimSpace(strings.Map(keep, name))
}

func classifyConvertError(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", yt2convert.ErrToolMissing, ffmpegName, err)
	}
	if strings.Contains(stderr, "No space left on device") {
		return fmt.Errorf("%w: %s", yt2convert.ErrDiskFull, firstLine(stderr))
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s", yt2convert.ErrConversion, firstLine(stderr))
	}
	return fmt.Errorf("%w: %v", yt2convert.ErrConversion, err)
}

func parseProgressValue(line string) (int64, bool) {
	value, ok := strings.CutPrefix(line, "out_time_us=")
	if !ok {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "no error output"
}
