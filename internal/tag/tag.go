// Package tag writes ID3v2 metadata into MP3 outputs.
package tag

import (
	"fmt"

	id3v2 "github.com/bogem/id3v2/v2"
	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
)

type ID3Tagger struct {
	log *zap.SugaredLogger
}

func New() *ID3Tagger {
	return &ID3Tagger{log: zap.S().Named("tag")}
}

// Tag writes title, artist and year frames from the source metadata. Errors
// here are reported to the pipeline as warnings; the job still completes.
func (t *ID3Tagger) Tag(path string, raw *yt2convert.RawArtifact) error {
	file, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("cannot open %s for tagging: %w", path, err)
	}
	defer file.Close()

	if raw.Title != "" {
		file.SetTitle(raw.Title)
	}
	if raw.Uploader != "" {
		file.SetArtist(raw.Uploader)
	}
	if len(raw.UploadDate) >= 4 {
		file.SetYear(raw.UploadDate[:4])
	}
	if err := file.Save(); err != nil {
		return fmt.Errorf("cannot save tags to %s: %w", path, err)
	}
	t.log.Debugw("tagged output", "path", path, "title", raw.Title, "artist", raw.Uploader)
	return nil
}
