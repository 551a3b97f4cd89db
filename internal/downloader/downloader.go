// Package downloader adapts the external yt-dlp binary to the Fetcher contract.
package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
)

const binaryName = "yt-dlp"

// How long a killed yt-dlp process gets to exit before Wait gives up on it.
const killWaitDelay = 5 * time.Second

// Resolver locates an external tool by name.
type Resolver interface {
	Resolve(name string) (string, error)
}

type Downloader struct {
	resolver Resolver
	log      *zap.SugaredLogger
	// ScratchBase overrides where per-fetch scratch directories are created.
	// Empty means the system temp dir.
	ScratchBase string
}

func New(resolver Resolver) *Downloader {
	return &Downloader{
		resolver: resolver,
		log:      zap.S().Named("downloader"),
	}
}

// Fetch downloads the media for the descriptor into a fresh scratch directory
// and returns it together with the probed source metadata. On any failure,
// including cancellation, the scratch directory and its partial contents are
// removed.
func (d *Downloader) Fetch(ctx context.Context, desc yt2convert.JobDescriptor, progress yt2convert.ProgressFunc) (*yt2convert.RawArtifact, error) {
	bin, err := d.resolver.Resolve(binaryName)
	if err != nil {
		return nil, err
	}

	meta, err := d.probe(ctx, bin, desc.URL)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(d.ScratchBase, "yt2convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	artifactPath, err := d.download(ctx, bin, desc, scratch, progress)
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, err
	}

	return &yt2convert.RawArtifact{
		Path:       artifactPath,
		ScratchDir: scratch,
		Title:      meta.Title,
		Uploader:   meta.Uploader,
		UploadDate: meta.UploadDate,
		VideoID:    meta.ID,
	}, nil
}

func (d *Downloader) probe(ctx context.Context, bin, url string) (*sourceMetadata, error) {
	cmd := exec.CommandContext(ctx, bin, "-J", "--no-playlist", "--no-warnings", url)
	cmd.WaitDelay = killWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.log.Debugw("probing source", "url", url)
	if err := cmd.Run(); err != nil {
		return nil, classifyRunError(ctx, err, stderr.String())
	}
	meta, err := parseMetadata(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", yt2convert.ErrUnavailable, err)
	}
	return meta, nil
}

func (d *Downloader) download(ctx context.Context, bin string, desc yt2convert.JobDescriptor, scratch string, progress yt2convert.ProgressFunc) (string, error) {
	args := fetchArgs(desc, scratch)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = killWaitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to attach to %s: %w", binaryName, err)
	}

	d.log.Infow("starting download", "url", desc.URL, "args", args)
	if err := cmd.Start(); err != nil {
		return "", classifyRunError(ctx, err, "")
	}

	var destination string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if pct, ok := parseProgressLine(line); ok && progress != nil {
			progress(pct)
		}
		if path, ok := parseDestinationLine(line); ok {
			destination = path
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", classifyRunError(ctx, err, stderr.String())
	}
	if progress != nil {
		progress(100)
	}

	if destination != "" {
		if _, err := os.Stat(destination); err == nil {
			return destination, nil
		}
	}
	return locateArtifact(scratch)
}

func fetchArgs(desc yt2convert.JobDescriptor, scratch string) []string {
	args := []string{"--newline", "--no-playlist", "--no-warnings"}
	if desc.Format.IsAudio() {
		args = append(args, "-f", "bestaudio/best")
	} else {
		args = append(args,
			"-f", yt2convert.FormatSelector(desc.Quality, desc.Codec),
			"--merge-output-format", "mp4",
		)
	}
	args = append(args,
		"-o", filepath.Join(scratch, "%(title).200s.%(ext)s"),
		desc.URL,
	)
	return args
}

// yt-dlp leaves in-progress files with these suffixes; they are never the
// finished artifact.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// locateArtifact finds the downloaded file in the scratch directory, used when
// no destination line was captured from the tool's output.
func locateArtifact(scratch string) (string, error) {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return "", fmt.Errorf("%w: cannot inspect scratch dir: %v", yt2convert.ErrUnavailable, err)
	}
	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if entry.IsDir() || isPartialFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(scratch, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: download produced no output file", yt2convert.ErrUnavailable)
	}
	return best, nil
}

func isPartialFile(name string) bool {
	for _, suffix := range partialSuffixes {
		if filepath.Ext(name) == suffix {
			return true
		}
	}
	return false
}

// classifyRunError maps a yt-dlp failure onto the error taxonomy using the
// process's stderr. Context cancellation is reported as the context's own
// error so the pipeline can distinguish cancel/timeout from a real failure.
func classifyRunError(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", yt2convert.ErrToolMissing, binaryName, err)
	}
	if kind := classifyStderr(stderr); kind != nil {
		return fmt.Errorf("%w: %s", kind, firstStderrLine(stderr))
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s: %s", yt2convert.ErrUnavailable, err, firstStderrLine(stderr))
	}
	return fmt.Errorf("%w: %v", yt2convert.ErrUnavailable, err)
}
