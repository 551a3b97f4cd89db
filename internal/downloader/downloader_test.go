package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	yt2convert "github.com/hossez/yt2convert"
)

func TestFetchArgsAudio(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{
		URL:     "https://youtu.be/abc123def45",
		Format:  yt2convert.FormatMP3,
		Quality: "192 kbps",
		DestDir: "/out",
	}
	args := fetchArgs(desc, "/scratch")
	assert.Contains(args, "--newline")
	assert.Contains(args, "--no-playlist")
	assert.Contains(args, "bestaudio/best")
	assert.NotContains(args, "--merge-output-format")
	assert.Equal(desc.URL, args[len(args)-1])
	assert.Contains(args, filepath.Join("/scratch", "%(title).200s.%(ext)s"))
}

func TestFetchArgsVideo(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{
		URL:     "https://youtu.be/abc123def45",
		Format:  yt2convert.FormatMP4,
		Quality: "1080p",
		Codec:   "H.264 (AVC)",
		DestDir: "/out",
	}
	args := fetchArgs(desc, "/scratch")
	assert.Contains(args, "--merge-output-format")
	assert.Contains(args, "mp4")
	assert.Contains(args, yt2convert.FormatSelector("1080p", "H.264 (AVC)"))
}

func TestParseProgressLine(t *testing.T) {
	for _, tc := range []struct {
		line string
		pct  float64
		ok   bool
	}{
		{"[download]  42.3% of 10.00MiB at 1.20MiB/s ETA 00:05", 42.3, true},
		{"[download] 100% of 10.00MiB in 00:08", 100, true},
		{"[download]   0.0% of ~3.52MiB at Unknown speed ETA Unknown", 0, true},
		{"[download] Destination: /tmp/x.webm", 0, false},
		{"[youtube] abc: Downloading webpage", 0, false},
		{"", 0, false},
	} {
		pct, ok := parseProgressLine(tc.line)
		assert_.Equal(t, tc.ok, ok, tc.line)
		if tc.ok {
			assert_.InDelta(t, tc.pct, pct, 0.001, tc.line)
		}
	}
}

func TestParseDestinationLine(t *testing.T) {
	assert := assert_.New(t)

	path, ok := parseDestinationLine("[download] Destination: /tmp/scratch/Song Title.webm")
	assert.True(ok)
	assert.Equal("/tmp/scratch/Song Title.webm", path)

	path, ok = parseDestinationLine(`[Merger] Merging formats into "/tmp/scratch/Song Title.mp4"`)
	assert.True(ok)
	assert.Equal("/tmp/scratch/Song Title.mp4", path)

	_, ok = parseDestinationLine("[download]  42.3% of 10.00MiB")
	assert.False(ok)
}

func TestParseMetadata(t *testing.T) {
	assert := assert_.New(t)

	meta, err := parseMetadata([]byte(`{"id":"abc123","title":"Song Title","uploader":"Some Band","upload_date":"20240117"}`))
	assert.NoError(err)
	assert.Equal("Song Title", meta.Title)
	assert.Equal("Some Band", meta.Uploader)
	assert.Equal("20240117", meta.UploadDate)

	// Missing title falls back to the video ID
	meta, err = parseMetadata([]byte(`{"id":"abc123"}`))
	assert.NoError(err)
	assert.Equal("abc123", meta.Title)

	_, err = parseMetadata([]byte("not json"))
	assert.Error(err)
}

func TestClassifyStderr(t *testing.T) {
	for _, tc := range []struct {
		stderr string
		want   error
	}{
		{"ERROR: 'not-a-url' is not a valid URL.", yt2convert.ErrInvalidInput},
		{"ERROR: [youtube] abc: Video unavailable", yt2convert.ErrUnavailable},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", yt2convert.ErrUnavailable},
		{"ERROR: [youtube] abc: Sign in to confirm your age", yt2convert.ErrUnavailable},
		{"ERROR: Unable to download webpage: <urlopen error timed out>", yt2convert.ErrNetwork},
		{"ERROR: something novel", nil},
	} {
		assert_.Equal(t, tc.want, classifyStderr(tc.stderr), tc.stderr)
	}
}

func TestClassifyRunErrorPrefersContext(t *testing.T) {
	assert := assert_.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := classifyRunError(ctx, errors.New("signal: killed"), "")
	assert.ErrorIs(err, context.Canceled)
}

func TestLocateArtifact(t *testing.T) {
	assert := assert_.New(t)
	scratch := t.TempDir()

	_, err := locateArtifact(scratch)
	assert.ErrorIs(err, yt2convert.ErrUnavailable)

	assert.NoError(os.WriteFile(filepath.Join(scratch, "video.webm.part"), []byte("partial"), 0o644))
	assert.NoError(os.WriteFile(filepath.Join(scratch, "video.webm.ytdl"), []byte("{}"), 0o644))
	assert.NoError(os.WriteFile(filepath.Join(scratch, "Song Title.webm"), []byte("full media payload"), 0o644))

	path, err := locateArtifact(scratch)
	assert.NoError(err)
	assert.Equal(filepath.Join(scratch, "Song Title.webm"), path)
}
