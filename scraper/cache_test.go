package scraper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func TestFileCacheStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config", "api_config_cache.json")
	store := NewFileCacheStore(path)
	store.now = func() time.Time { return time.Unix(1700000000, 500000000) }

	_, ok := store.Load()
	require.False(t, ok, "missing file is a miss")

	want := models.ProbeConfig{Type: intPtr(1), SubcategoryID: intPtr(9)}
	require.NoError(t, store.Save(want))

	got, ok := store.Load()
	require.True(t, ok)
	require.True(t, got.Equal(want), "loaded %+v", got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, map[string]any{"type": 1.0, "subcategoryId": 9.0}, onDisk["best_config"])
	require.InDelta(t, 1700000000.5, onDisk["last_updated"], 0.001)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestFileCacheStoreEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	store := NewFileCacheStore(path)

	require.NoError(t, store.Save(models.ProbeConfig{}))
	got, ok := store.Load()
	require.True(t, ok, "an empty best config is still a hit")
	require.True(t, got.Equal(models.ProbeConfig{}))
}

func TestFileCacheStoreInvalidContents(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "corrupt", body: `{"best_config":`},
		{name: "missing key", body: `{"last_updated": 1}`},
		{name: "null config", body: `{"best_config": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			_, ok := NewFileCacheStore(path).Load()
			require.False(t, ok)
		})
	}
}
