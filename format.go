package yt2convert

import (
	"fmt"
	"regexp"
	"strings"
)

// Format is the requested output container/encoding for a job.
type Format string

const (
	FormatMP3 Format = "MP3"
	FormatWAV Format = "WAV"
	FormatMP4 Format = "MP4"
)

func (f Format) String() string {
	return string(f)
}

// Ext returns the output file extension (without the dot).
func (f Format) Ext() string {
	return strings.ToLower(string(f))
}

// IsAudio returns true for audio-only output formats.
func (f Format) IsAudio() bool {
	return f == FormatMP3 || f == FormatWAV
}

// NeedsTagging returns true if the output format gets metadata tags written after
// conversion.
func (f Format) NeedsTagging() bool {
	return f == FormatMP3
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatMP3:
		return FormatMP3, nil
	case FormatWAV:
		return FormatWAV, nil
	case FormatMP4:
		return FormatMP4, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrUnsupportedFormat, s)
	}
}

// AudioEncoding holds the ffmpeg encoder arguments for one audio quality choice.
type AudioEncoding struct {
	Codec      string
	Bitrate    string // e.g. "192k", empty for WAV
	SampleRate string // e.g. "44100", empty for MP3
}

var mp3Qualities = map[string]AudioEncoding{
	"320 kbps": {Codec: "libmp3lame", Bitrate: "320k"},
	"256 kbps": {Codec: "libmp3lame", Bitrate: "256k"},
	"192 kbps": {Codec: "libmp3lame", Bitrate: "192k"},
	"128 kbps": {Codec: "libmp3lame", Bitrate: "128k"},
	"64 kbps":  {Codec: "libmp3lame", Bitrate: "64k"},
}

var wavQualities = map[string]AudioEncoding{
	"32-bit (48 kHz)":   {Codec: "pcm_f32le", SampleRate: "48000"},
	"24-bit (48 kHz)":   {Codec: "pcm_s24le", SampleRate: "48000"},
	"16-bit (44.1 kHz)": {Codec: "pcm_s16le", SampleRate: "44100"},
}

// AudioQuality looks up the encoder arguments for an audio format/quality pair.
func AudioQuality(f Format, quality string) (AudioEncoding, bool) {
	switch f {
	case FormatMP3:
		enc, ok := mp3Qualities[quality]
		return enc, ok
	case FormatWAV:
		enc, ok := wavQualities[quality]
		return enc, ok
	default:
		return AudioEncoding{}, false
	}
}

// BestAvailable is the quality/codec choice meaning "let the downloader pick".
const BestAvailable = "Best Available"

// videoCodec describes how one codec family maps onto yt-dlp format selection.
type videoCodec struct {
	// Prefix matched against the vcodec field, e.g. "avc1".
	selector string
	// Preferred companion audio codec.
	audioCodec string
}

var videoCodecs = map[string]videoCodec{
	"H.264 (AVC)": {selector: "avc1", audioCodec: "aac"},
	"VP9":         {selector: "vp9", audioCodec: "opus"},
	"AV1":         {selector: "av01", audioCodec: "opus"},
}

// codecResolutions records which resolution tiers each codec is typically
// published at.
var codecResolutions = map[string]map[string]int{
	"H.264 (AVC)": {
		"1080p": 1080, "720p": 720, "480p": 480, "360p": 360, "240p": 240, "144p": 144,
	},
	"VP9": {
		"2160p (4K)": 2160, "1440p (2K)": 1440, "1080p": 1080, "720p": 720, "480p": 480, "360p": 360,
	},
	"AV1": {
		"2160p (4K)": 2160, "1440p (2K)": 1440, "1080p": 1080, "720p": 720,
	},
}

var resolutionPattern = regexp.MustCompile(`(\d+)p`)

// resolutionHeight maps a resolution label like "1080p" or "2160p (4K)" to its
// pixel height, preferring the codec matrix and falling back to parsing the label.
func resolutionHeight(resolution string) int {
	for _, resolutions := range codecResolutions {
		if height, ok := resolutions[resolution]; ok {
			return height
		}
	}
	if m := resolutionPattern.FindStringSubmatch(resolution); m != nil {
		height := 0
		fmt.Sscanf(m[1], "%d", &height)
		if height > 0 {
			return height
		}
	}
	return 720
}

// VideoQualities returns the known resolution labels, highest first.
func VideoQualities() []string {
	return []string{
		BestAvailable, "2160p (4K)", "1440p (2K)", "1080p", "720p", "480p", "360p", "240p", "144p",
	}
}

// VideoCodecs returns the selectable codec family labels.
func VideoCodecs() []string {
	return []string{BestAvailable, "H.264 (AVC)", "VP9", "AV1"}
}

// AudioQualities returns the quality labels for an audio format, best first.
func AudioQualities(f Format) []string {
	switch f {
	case FormatMP3:
		return []string{"320 kbps", "256 kbps", "192 kbps", "128 kbps", "64 kbps"}
	case FormatWAV:
		return []string{"32-bit (48 kHz)", "24-bit (48 kHz)", "16-bit (44.1 kHz)"}
	default:
		return nil
	}
}

// FormatSelector builds the yt-dlp format expression for a video download with
// the given resolution and codec choices. Every expression ends with a
// "bestvideo+bestaudio/best" fallback so an uncommon codec/resolution pairing
// degrades instead of failing.
func FormatSelector(resolution, codec string) string {
	if resolution == "" {
		resolution = BestAvailable
	}
	if codec == "" {
		codec = BestAvailable
	}
	if resolution == BestAvailable && codec == BestAvailable {
		return "bestvideo+bestaudio/best"
	}

	var constraints []string
	if resolution != BestAvailable {
		constraints = append(constraints, fmt.Sprintf("height<=%d", resolutionHeight(resolution)))
	}
	if codec != BestAvailable {
		if vc, ok := videoCodecs[codec]; ok {
			constraints = append(constraints, fmt.Sprintf("vcodec^=%s", vc.selector))
		}
	}
	if len(constraints) == 0 {
		return "bestvideo+bestaudio/best"
	}

	joined := "[" + strings.Join(constraints, "][") + "]"
	if codec == "H.264 (AVC)" {
		// H.264 viewers expect AAC audio; prefer it but fall back to anything.
		return fmt.Sprintf("bestvideo%s+bestaudio[acodec^=mp4a]/best%s/bestvideo+bestaudio/best", joined, joined)
	}
	return fmt.Sprintf("bestvideo%s+bestaudio/best%s/bestvideo+bestaudio/best", joined, joined)
}
