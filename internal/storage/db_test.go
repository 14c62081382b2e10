package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestAssetRecordCRUD(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	rec := AssetRecord{
		Path:         "/libs/guava-31.jar",
		URL:          "https://libraries.example.com/guava-31.jar",
		ExpectedHash: "abc123",
		HashAlgo:     "sha1",
		Size:         1024,
		Status:       "ok",
	}

	require.NoError(t, s.SaveAssetRecord(rec))

	got, err := s.GetAssetRecord(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, rec.ExpectedHash, got.ExpectedHash)
	assert.Equal(t, rec.Size, got.Size)
	assert.False(t, got.VerifiedAt.IsZero())

	rec.Status = "repaired"
	require.NoError(t, s.SaveAssetRecord(rec))
	got, err = s.GetAssetRecord(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, "repaired", got.Status)

	require.NoError(t, s.DeleteAssetRecord(rec.Path))
	_, err = s.GetAssetRecord(rec.Path)
	assert.Error(t, err)
}

func TestDailyStats(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	require.NoError(t, s.IncrementDailyBytes(100))
	require.NoError(t, s.IncrementDailyBytes(100))

	total, err := s.GetTotalLifetimeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(200), total)

	require.NoError(t, s.IncrementDailyFiles())
	require.NoError(t, s.IncrementDailyFiles())

	files, err := s.GetTotalFiles()
	require.NoError(t, err)
	assert.Equal(t, int64(2), files)

	history, err := s.GetDailyHistory(7)
	require.NoError(t, err)

	today := time.Now().Format("2006-01-02")
	var found bool
	for _, stat := range history {
		if stat.Date == today {
			found = true
			assert.Equal(t, int64(200), stat.BytesDownloaded)
			assert.Equal(t, int64(2), stat.FilesVerified)
		}
	}
	assert.True(t, found, "today's stats not found in history")
}

func TestSavedGameDirs(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	require.NoError(t, s.AddSavedDir("/games/main", "Main Install"))

	dirs, err := s.GetSavedDirs()
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "Main Install", dirs[0].Nickname)

	require.NoError(t, s.AddSavedDir("/games/main", "Renamed"))
	dirs, err = s.GetSavedDirs()
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "Renamed", dirs[0].Nickname)
}

func TestAppSettings(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	require.NoError(t, s.SetString("device_id", "abc-123"))
	val, err := s.GetString("device_id")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", val)

	require.NoError(t, s.SetStringList("healthy_hosts", []string{"a.example.com", "b.example.com"}))
	list, err := s.GetStringList("healthy_hosts")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, list)
}

func TestBgmTriggerCRUD(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	rec := BgmTriggerRecord{
		Name:      "world-loaded",
		Pattern:   "loaded world",
		MusicPath: "w.ogg",
		FadeInMs:  100,
		Priority:  10,
		Volume:    1,
	}
	require.NoError(t, s.SaveBgmTrigger(rec))

	recs, err := s.ListBgmTriggers()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "loaded world", recs[0].Pattern)

	rec.Priority = 20
	require.NoError(t, s.SaveBgmTrigger(rec))
	recs, err = s.ListBgmTriggers()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 20, recs[0].Priority)

	require.NoError(t, s.DeleteBgmTrigger(rec.Name))
	recs, err = s.ListBgmTriggers()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClearBgmTriggers(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	require.NoError(t, s.SaveBgmTrigger(BgmTriggerRecord{Name: "a", Pattern: "a"}))
	require.NoError(t, s.SaveBgmTrigger(BgmTriggerRecord{Name: "b", Pattern: "b"}))

	require.NoError(t, s.ClearBgmTriggers())
	recs, err := s.ListBgmTriggers()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNewStoragePath(t *testing.T) {
	// NewStorage resolves os.UserConfigDir() internally; exercising the
	// path-independent half of its logic through Open is sufficient here.
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Checkpoint())
}
