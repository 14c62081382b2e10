package storage

import "time"

// AssetRecord caches the last known-good verification result for a single
// library or asset descriptor so the Update & Asset Pipeline (C7) does not
// need to re-hash unchanged files on every launch. Keyed by the absolute
// on-disk path.
type AssetRecord struct {
	Path         string    `gorm:"primaryKey" json:"path"`
	URL          string    `json:"url"`
	ExpectedHash string    `json:"expected_hash"`
	HashAlgo     string    `json:"hash_algo"`
	Size         int64     `json:"size"`
	Status       string    `gorm:"index" json:"status"` // ok, missing, mismatch, repaired
	VerifiedAt   time.Time `json:"verified_at"`
}

// TableName specifies the table name for AssetRecord
func (AssetRecord) TableName() string {
	return "asset_records"
}

// DailyStat tracks per-day network throughput: bytes the Network Engine
// fetched and files the Asset Pipeline verified, grounded on
// project-tachyon's analytics table but scoped to what this core produces.
type DailyStat struct {
	Date            string `gorm:"primaryKey"` // Format: "YYYY-MM-DD"
	BytesDownloaded int64  `gorm:"default:0"`
	FilesVerified   int64  `gorm:"default:0"`
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// AppSetting stores key/value launcher-runtime settings not modeled as
// typed LaunchConfig fields.
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}

// SavedGameDir is a nicknamed game-directory bookmark, e.g. distinct
// installs kept on different drives.
type SavedGameDir struct {
	Path     string `gorm:"primaryKey" json:"path"`
	Nickname string `json:"nickname"`
}

// TableName specifies the table name for SavedGameDir
func (SavedGameDir) TableName() string {
	return "saved_game_dirs"
}

// BgmTriggerRecord persists one BGM State Engine (C11) trigger so the
// configured trigger list survives a restart instead of needing to be
// rebuilt from defaults every launch.
type BgmTriggerRecord struct {
	Name      string  `gorm:"primaryKey" json:"name"`
	Pattern   string  `json:"pattern"`
	MusicPath string  `json:"music_path"`
	Loop      bool    `json:"loop"`
	FadeInMs  int     `json:"fade_in_ms"`
	FadeOutMs int     `json:"fade_out_ms"`
	Volume    float64 `json:"volume"`
	Priority  int     `json:"priority"`
}

// TableName specifies the table name for BgmTriggerRecord
func (BgmTriggerRecord) TableName() string {
	return "bgm_triggers"
}
