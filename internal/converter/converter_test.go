package converter

import (
	"context"
	"errors"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	yt2convert "github.com/hossez/yt2convert"
)

func TestConvertArgsMP3(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{Format: yt2convert.FormatMP3, Quality: "192 kbps", DestDir: "/out"}
	args, err := convertArgs("/scratch/in.webm", "/out/.x.mp3.partial", desc)
	assert.NoError(err)
	assert.Equal("/out/.x.mp3.partial", args[len(args)-1])
	assert.Contains(args, "libmp3lame")
	assert.Contains(args, "192k")
	assert.Contains(args, "-vn")
	assert.Contains(args, "mp3")
	assert.NotContains(args, "-ar")
}

func TestConvertArgsWAV(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{Format: yt2convert.FormatWAV, Quality: "16-bit (44.1 kHz)", DestDir: "/out"}
	args, err := convertArgs("/scratch/in.webm", "/out/.x.wav.partial", desc)
	assert.NoError(err)
	assert.Contains(args, "pcm_s16le")
	assert.Contains(args, "44100")
	assert.NotContains(args, "-b:a")
}

func TestConvertArgsMP4Remux(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{Format: yt2convert.FormatMP4, Quality: yt2convert.BestAvailable, DestDir: "/out"}
	args, err := convertArgs("/scratch/in.mp4", "/out/.x.mp4.partial", desc)
	assert.NoError(err)
	assert.Contains(args, "copy")
	assert.Contains(args, "+faststart")
}

func TestConvertArgsUnknownQuality(t *testing.T) {
	assert := assert_.New(t)
	desc := yt2convert.JobDescriptor{Format: yt2convert.FormatMP3, Quality: "999 kbps"}
	_, err := convertArgs("in", "out", desc)
	assert.ErrorIs(err, yt2convert.ErrUnsupportedFormat)
}

func TestSanitizeFilename(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"Song Title", "Song Title"},
		{"Artist - Song (Official Video)", "Artist - Song (Official Video)"},
		{`What/Is\This:Name?`, "WhatIsThisName"},
		{"日本語タイトル", ""},
		{"  spaced  ", "spaced"},
	} {
		assert_.Equal(t, tc.want, sanitizeFilename(tc.in), tc.in)
	}
}

func TestOutputName(t *testing.T) {
	assert := assert_.New(t)

	raw := &yt2convert.RawArtifact{Title: "Song Title", VideoID: "abc123"}
	assert.Equal("Song Title.mp3", outputName(raw, yt2convert.FormatMP3))

	// Title that sanitizes to nothing falls back to the video ID
	raw = &yt2convert.RawArtifact{Title: "日本語", VideoID: "abc123"}
	assert.Equal("abc123.wav", outputName(raw, yt2convert.FormatWAV))
}

func TestParseProgressValue(t *testing.T) {
	assert := assert_.New(t)

	us, ok := parseProgressValue("out_time_us=1500000")
	assert.True(ok)
	assert.Equal(int64(1500000), us)

	_, ok = parseProgressValue("frame=100")
	assert.False(ok)
	_, ok = parseProgressValue("out_time_us=N/A")
	assert.False(ok)
}

func TestClassifyConvertError(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()

	err := classifyConvertError(ctx, errors.New("exit status 1"), "av_write_frame: No space left on device\n")
	assert.ErrorIs(err, yt2convert.ErrDiskFull)

	err = classifyConvertError(ctx, errors.New("exit status 1"), "Invalid data found when processing input\n")
	assert.ErrorIs(err, yt2convert.ErrConversion)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = classifyConvertError(cancelled, errors.New("signal: killed"), "")
	assert.ErrorIs(err, context.Canceled)
}

type missingResolver struct{}

func (missingResolver) Resolve(name string) (string, error) {
	return "", yt2convert.ErrToolMissing
}

func TestConvertToolMissing(t *testing.T) {
	assert := assert_.New(t)
	c := New(missingResolver{})
	desc := yt2convert.JobDescriptor{Format: yt2convert.FormatMP3, Quality: "192 kbps", DestDir: t.TempDir()}
	_, err := c.Convert(context.Background(), &yt2convert.RawArtifact{Path: "in"}, desc, nil)
	assert.ErrorIs(err, yt2convert.ErrToolMissing)
}
