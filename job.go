package yt2convert

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kkdai/youtube/v2"
)

// A JobDescriptor describes one requested conversion. It is immutable once
// created; the pipeline owns it for the duration of a single run.
type JobDescriptor struct {
	URL     string
	Format  Format
	Quality string
	// Codec is the video codec family choice, only meaningful for FormatMP4.
	Codec   string
	DestDir string
}

// Validate rejects a descriptor before any subprocess is spawned. All failures
// wrap ErrInvalidInput.
func (d JobDescriptor) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}
	parsed, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: URL scheme %q", ErrInvalidInput, parsed.Scheme)
	}
	if _, err := youtube.ExtractVideoID(d.URL); err != nil {
		return fmt.Errorf("%w: not a recognised video URL: %v", ErrInvalidInput, err)
	}
	if d.DestDir == "" {
		return fmt.Errorf("%w: empty destination directory", ErrInvalidInput)
	}
	switch d.Format {
	case FormatMP3, FormatWAV:
		if _, ok := AudioQuality(d.Format, d.Quality); !ok {
			return fmt.Errorf("%w: quality %q not valid for %s", ErrInvalidInput, d.Quality, d.Format)
		}
	case FormatMP4:
		if d.Quality != BestAvailable && !resolutionKnown(d.Quality) {
			return fmt.Errorf("%w: resolution %q not recognised", ErrInvalidInput, d.Quality)
		}
		if d.Codec != "" && d.Codec != BestAvailable {
			if _, ok := videoCodecs[d.Codec]; !ok {
				return fmt.Errorf("%w: codec %q not recognised", ErrInvalidInput, d.Codec)
			}
		}
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidInput, string(d.Format))
	}
	return nil
}

func resolutionKnown(resolution string) bool {
	for _, r := range VideoQualities() {
		if r == resolution {
			return true
		}
	}
	return false
}

// VideoID extracts the video ID from the descriptor URL. Only valid after
// Validate has succeeded.
func (d JobDescriptor) VideoID() string {
	id, _ := youtube.ExtractVideoID(d.URL)
	return id
}

// A RawArtifact is the downloaded media file plus the source metadata that came
// with it, before conversion.
type RawArtifact struct {
	Path string
	// ScratchDir is the temporary directory holding Path; the pipeline removes
	// it once the job reaches a terminal state.
	ScratchDir string
	Title      string
	Uploader   string
	UploadDate string // YYYYMMDD, may be empty
	VideoID    string
}

// An OutputFile is the final converted file at its destination path.
type OutputFile struct {
	Path string
}

// ProgressFunc receives percentage updates (0-100) from an adapter. Callbacks
// may arrive from the adapter's own goroutine.
type ProgressFunc func(percent float64)

// Fetcher downloads the source media for a descriptor into a scratch location,
// reporting progress as it goes. Cancelling ctx must terminate the underlying
// process within a bounded time and remove any partial file.
type Fetcher interface {
	Fetch(ctx context.Context, desc JobDescriptor, progress ProgressFunc) (*RawArtifact, error)
}

// Converter transcodes a raw artifact into the requested output format inside
// desc.DestDir. Implementations must never leave a half-written file at the
// final output name.
type Converter interface {
	Convert(ctx context.Context, raw *RawArtifact, desc JobDescriptor, progress ProgressFunc) (*OutputFile, error)
}

// Tagger writes source metadata into an output file. Errors are recorded as
// warnings by the pipeline, never as job failures.
type Tagger interface {
	Tag(path string, raw *RawArtifact) error
}
