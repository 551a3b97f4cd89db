package yt2convert

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestParseFormat(t *testing.T) {
	assert := assert_.New(t)
	for _, input := range []string{"mp3", "MP3", "Mp3"} {
		f, err := ParseFormat(input)
		assert.NoError(err)
		assert.Equal(FormatMP3, f)
	}
	_, err := ParseFormat("flac")
	assert.ErrorIs(err, ErrUnsupportedFormat)
}

func TestFormatProperties(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("mp3", FormatMP3.Ext())
	assert.Equal("wav", FormatWAV.Ext())
	assert.Equal("mp4", FormatMP4.Ext())

	assert.True(FormatMP3.IsAudio())
	assert.True(FormatWAV.IsAudio())
	assert.False(FormatMP4.IsAudio())

	// Only MP3 carries ID3 tags
	assert.True(FormatMP3.NeedsTagging())
	assert.False(FormatWAV.NeedsTagging())
	assert.False(FormatMP4.NeedsTagging())
}

func TestAudioQuality(t *testing.T) {
	assert := assert_.New(t)

	enc, ok := AudioQuality(FormatMP3, "320 kbps")
	assert.True(ok)
	assert.Equal("libmp3lame", enc.Codec)
	assert.Equal("320k", enc.Bitrate)

	enc, ok = AudioQuality(FormatWAV, "16-bit (44.1 kHz)")
	assert.True(ok)
	assert.Equal("pcm_s16le", enc.Codec)
	assert.Equal("44100", enc.SampleRate)

	_, ok = AudioQuality(FormatMP3, "999 kbps")
	assert.False(ok)
	_, ok = AudioQuality(FormatMP4, "320 kbps")
	assert.False(ok)
}

func TestAudioQualitiesAllResolve(t *testing.T) {
	assert := assert_.New(t)
	for _, f := range []Format{FormatMP3, FormatWAV} {
		for _, q := range AudioQualities(f) {
			_, ok := AudioQuality(f, q)
			assert.True(ok, "%s quality %q has no encoding", f, q)
		}
	}
}

func TestFormatSelector(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal("bestvideo+bestaudio/best", FormatSelector(BestAvailable, BestAvailable))
	assert.Equal("bestvideo+bestaudio/best", FormatSelector("", ""))

	// Resolution constraint only
	assert.Equal(
		"bestvideo[height<=1080]+bestaudio/best[height<=1080]/bestvideo+bestaudio/best",
		FormatSelector("1080p", BestAvailable))

	// H.264 prefers AAC audio before falling back
	assert.Equal(
		"bestvideo[height<=720][vcodec^=avc1]+bestaudio[acodec^=mp4a]/best[height<=720][vcodec^=avc1]/bestvideo+bestaudio/best",
		FormatSelector("720p", "H.264 (AVC)"))

	// Non-H.264 codecs take any best audio
	assert.Equal(
		"bestvideo[vcodec^=vp9]+bestaudio/best[vcodec^=vp9]/bestvideo+bestaudio/best",
		FormatSelector(BestAvailable, "VP9"))

	// 4K label parses to its pixel height
	assert.Contains(FormatSelector("2160p (4K)", "AV1"), "height<=2160")
}

func TestResolutionHeightFallback(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal(1440, resolutionHeight("1440p (2K)"))
	assert.Equal(480, resolutionHeight("480p"))
	// Unknown labels degrade to a sane default rather than 0
	assert.Equal(720, resolutionHeight("potato"))
}
