package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
)

const settingsFilename = "settings.json"

// Settings is the persistent application configuration. Unknown fields in the
// stored file are ignored on load; missing fields keep their defaults.
type Settings struct {
	OutputDir       string            `json:"download_folder"`
	DefaultFormat   yt2convert.Format `json:"default_format"`
	DefaultQuality  string            `json:"default_quality"`
	DefaultCodec    string            `json:"default_codec"`
	Theme           string            `json:"theme"`
	AutoUpdateCheck bool              `json:"auto_check_updates"`
	LastUpdateCheck string            `json:"last_update_check"`
}

func DefaultSettings() Settings {
	outputDir := "converted"
	if exe, err := os.Executable(); err == nil {
		outputDir = filepath.Join(filepath.Dir(exe), "converted")
	}
	return Settings{
		OutputDir:       outputDir,
		DefaultFormat:   yt2convert.FormatMP3,
		DefaultQuality:  "192 kbps",
		DefaultCodec:    yt2convert.BestAvailable,
		Theme:           "Midnight Blue",
		AutoUpdateCheck: true,
	}
}

// SettingsStore loads and saves Settings at a fixed path. Writes are
// serialized; a persistence failure is never fatal to a job.
type SettingsStore struct {
	path string
	mu   sync.Mutex
	log  *zap.SugaredLogger
}

func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{
		path: filepath.Join(dir, settingsFilename),
		log:  zap.S().Named("settings"),
	}
}

// Load returns the persisted settings, or defaults when the file is missing or
// malformed. Malformed data is logged, not fatal.
func (s *SettingsStore) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *SettingsStore) loadLocked() Settings {
	settings := DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("cannot read settings, using defaults", "path", s.path, "error", err)
		}
		return settings
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log.Warnw("malformed settings, using defaults", "path", s.path, "error", err)
		return DefaultSettings()
	}
	return settings
}

// Save persists the settings with a temp-file-then-rename write.
func (s *SettingsStore) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *SettingsStore) saveLocked(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// Update applies f to the current settings and persists the result as one
// serialized read-modify-write, so concurrent "last used" updates from
// finishing jobs cannot interleave partial writes.
func (s *SettingsStore) Update(f func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.loadLocked()
	f(&settings)
	return s.saveLocked(settings)
}
