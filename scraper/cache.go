package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ProbeCacheStore remembers the best probe configuration across runs.
type ProbeCacheStore interface {
	// Load returns the remembered configuration; ok is false on a miss.
	Load() (models.ProbeConfig, bool)
	Save(models.ProbeConfig) error
}

// FileCacheStore keeps the best configuration in a JSON file.
type FileCacheStore struct {
	path string
	now  func() time.Time
}

// NewFileCacheStore returns a store backed by path.
func NewFileCacheStore(path string) *FileCacheStore {
	return &FileCacheStore{path: path, now: time.Now}
}

// Load reads the cache file. Missing or corrupt files are a miss.
func (s *FileCacheStore) Load() (models.ProbeConfig, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("probe cache unreadable", slog.String("path", s.path), slog.Any("error", err))
		}
		return models.ProbeConfig{}, false
	}

	var entry struct {
		BestConfig *models.ProbeConfig `json:"best_config"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil || entry.BestConfig == nil {
		slog.Warn("probe cache corrupt, ignoring", slog.String("path", s.path), slog.Any("error", err))
		return models.ProbeConfig{}, false
	}
	return *entry.BestConfig, true
}

// Save overwrites the cache file with cfg and the current time.
func (s *FileCacheStore) Save(cfg models.ProbeConfig) error {
	entry := models.ProbeCache{
		BestConfig:  cfg,
		LastUpdated: float64(s.now().UnixNano()) / float64(time.Second),
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode probe cache: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write probe cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace probe cache: %w", err)
	}
	return nil
}
