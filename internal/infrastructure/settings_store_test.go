package infrastructure

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

func setupSQLiteStore(t *testing.T) *SQLiteSettingsStore {
	t.Helper()
	store, err := NewSQLiteSettingsStore(filepath.Join(t.TempDir(), "settings.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func settingsStores(t *testing.T) map[string]domain.SettingsStore {
	return map[string]domain.SettingsStore{
		"file":   NewFileSettingsStore(filepath.Join(t.TempDir(), "config", "settings.yaml"), zap.NewNop()),
		"sqlite": setupSQLiteStore(t),
	}
}

func TestSettingsStore_DefaultsWhenEmpty(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, domain.DefaultSettings(), store.Load())
		})
	}
}

func TestSettingsStore_SaveLoad(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(domain.Settings{VideoQuality: "720p", AudioBitrate: "320"}))
			assert.Equal(t, domain.Settings{VideoQuality: "720p", AudioBitrate: "320"}, store.Load())

			// overwritten wholesale
			require.NoError(t, store.Save(domain.Settings{VideoQuality: "1080p", AudioBitrate: "128"}))
			assert.Equal(t, domain.Settings{VideoQuality: "1080p", AudioBitrate: "128"}, store.Load())
		})
	}
}

func TestSettingsStore_UnknownValuesStillResolve(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(domain.Settings{VideoQuality: "potato", AudioBitrate: "loud"}))

			s := store.Load()
			assert.Equal(t, "potato", s.VideoQuality)
			assert.Equal(t, 0, domain.ResolveVideoQuality(s))
			assert.Equal(t, domain.DefaultAudioBitrate, domain.ResolveAudioBitrate(s))
		})
	}
}

func TestSettingsStore_ConcurrentSaves(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			qualities := []string{"144p", "360p", "720p", "1080p"}
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Save(domain.Settings{VideoQuality: qualities[i%len(qualities)], AudioBitrate: "192"}))
				}(i)
			}
			wg.Wait()

			assert.Contains(t, qualities, store.Load().VideoQuality)
		})
	}
}

func TestFileSettingsStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("videoQuality: [unclosed\n\t- nope"), 0644))

	store := NewFileSettingsStore(path, zap.NewNop())

	assert.Equal(t, domain.DefaultSettings(), store.Load())
}

func TestFileSettingsStore_DocumentFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store := NewFileSettingsStore(path, zap.NewNop())

	require.NoError(t, store.Save(domain.Settings{VideoQuality: "720p", AudioBitrate: "256"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "videoQuality: 720p")
	assert.Contains(t, string(data), `audioBitrate: "256"`)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSettingsStore_HandEditedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{"videoQuality": "480p"}`), 0644))

	s := NewFileSettingsStore(path, zap.NewNop()).Load()

	assert.Equal(t, "480p", s.VideoQuality)
	assert.Equal(t, domain.DefaultAudioBitrate, s.AudioBitrate)
}
