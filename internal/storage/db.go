package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Storage is the gorm-backed persistence layer. It owns one *gorm.DB and is
// safe for concurrent use — gorm serializes access to the underlying
// *sql.DB connection pool itself, so callers do not need an external lock.
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens (creating if necessary) the SQLite database under the
// user's config directory and migrates the schema.
func NewStorage() (*Storage, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	dbDir := filepath.Join(appData, "NekoLauncher")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return Open(filepath.Join(dbDir, "launcher.db"))
}

// Open opens a database at a specific path; "" or ":memory:" creates an
// ephemeral in-memory database, used by tests.
func Open(path string) (*Storage, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")

	if err := db.AutoMigrate(
		&AssetRecord{},
		&DailyStat{},
		&AppSetting{},
		&SavedGameDir{},
		&BgmTriggerRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Storage{DB: db}, nil
}

// Close releases the underlying *sql.DB connection.
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Checkpoint forces a WAL checkpoint, used before shutdown so an abrupt
// process exit never loses the last write.
func (s *Storage) Checkpoint() error {
	return s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE);").Error
}

// --- Asset cache (C7) ---

// SaveAssetRecord upserts a verification result keyed by path.
func (s *Storage) SaveAssetRecord(rec AssetRecord) error {
	rec.VerifiedAt = time.Now()
	return s.DB.Save(&rec).Error
}

// GetAssetRecord returns the cached verification result for path, if any.
func (s *Storage) GetAssetRecord(path string) (AssetRecord, error) {
	var rec AssetRecord
	err := s.DB.First(&rec, "path = ?", path).Error
	return rec, err
}

// DeleteAssetRecord removes a cached result, used when a file is deleted
// and redownloaded after an integrity failure.
func (s *Storage) DeleteAssetRecord(path string) error {
	return s.DB.Delete(&AssetRecord{}, "path = ?", path).Error
}

// --- Daily stats (C1/C5 statistics persistence) ---

func (s *Storage) today() string {
	return time.Now().Format("2006-01-02")
}

// IncrementDailyBytes adds delta bytes to today's row, creating it if
// necessary.
func (s *Storage) IncrementDailyBytes(delta int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var stat DailyStat
		date := s.today()
		err := tx.First(&stat, "date = ?", date).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: date}
		} else if err != nil {
			return err
		}
		stat.BytesDownloaded += delta
		return tx.Save(&stat).Error
	})
}

// IncrementDailyFiles bumps today's verified-files counter by one.
func (s *Storage) IncrementDailyFiles() error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var stat DailyStat
		date := s.today()
		err := tx.First(&stat, "date = ?", date).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: date}
		} else if err != nil {
			return err
		}
		stat.FilesVerified++
		return tx.Save(&stat).Error
	})
}

// GetTotalLifetimeBytes sums BytesDownloaded across every recorded day.
func (s *Storage) GetTotalLifetimeBytes() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(bytes_downloaded), 0)").Scan(&total).Error
	return total, err
}

// GetTotalFiles sums FilesVerified across every recorded day.
func (s *Storage) GetTotalFiles() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(files_verified), 0)").Scan(&total).Error
	return total, err
}

// GetDailyHistory returns the most recent `days` rows, oldest first.
func (s *Storage) GetDailyHistory(days int) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.DB.Order("date DESC").Limit(days).Find(&stats).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(stats)-1; i < j; i, j = i+1, j-1 {
		stats[i], stats[j] = stats[j], stats[i]
	}
	return stats, nil
}

// --- Saved game directories ---

// AddSavedDir upserts a nicknamed game-directory bookmark.
func (s *Storage) AddSavedDir(path, nickname string) error {
	return s.DB.Save(&SavedGameDir{Path: path, Nickname: nickname}).Error
}

// GetSavedDirs returns every bookmarked game directory.
func (s *Storage) GetSavedDirs() ([]SavedGameDir, error) {
	var dirs []SavedGameDir
	err := s.DB.Find(&dirs).Error
	return dirs, err
}

// --- BGM triggers (C11) ---

// SaveBgmTrigger upserts a trigger definition keyed by name.
func (s *Storage) SaveBgmTrigger(rec BgmTriggerRecord) error {
	return s.DB.Save(&rec).Error
}

// DeleteBgmTrigger removes a persisted trigger by name.
func (s *Storage) DeleteBgmTrigger(name string) error {
	return s.DB.Delete(&BgmTriggerRecord{}, "name = ?", name).Error
}

// ListBgmTriggers returns every persisted trigger, in no particular order;
// callers re-sort by priority after loading.
func (s *Storage) ListBgmTriggers() ([]BgmTriggerRecord, error) {
	var recs []BgmTriggerRecord
	err := s.DB.Find(&recs).Error
	return recs, err
}

// ClearBgmTriggers deletes every persisted trigger.
func (s *Storage) ClearBgmTriggers() error {
	return s.DB.Where("1 = 1").Delete(&BgmTriggerRecord{}).Error
}

// --- Generic app settings (KV) ---

// GetString returns a setting's raw value, or "" if unset.
func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return setting.Value, err
}

// SetString upserts a single setting value.
func (s *Storage) SetString(key, value string) error {
	return s.DB.Save(&AppSetting{Key: key, Value: value}).Error
}

// GetStringList returns a JSON-encoded setting decoded back to a slice.
func (s *Storage) GetStringList(key string) ([]string, error) {
	raw, err := s.GetString(key)
	if err != nil || raw == "" {
		return []string{}, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return list, nil
}

// SetStringList JSON-encodes and stores a string slice under key.
func (s *Storage) SetStringList(key string, list []string) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.SetString(key, string(data))
}
