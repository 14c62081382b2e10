// Package config implements the Config Store (spec C4): a thread-safe,
// reader-writer-locked accessor over the persisted launcher configuration,
// backed by an INI file.
//
// Grounded on the original implementation's neko::app::ConfigManager
// (a shared_mutex guarding a CSimpleIniA instance, with an atomic
// updateClientConfig(fn) that locks once, mutates, and writes back) and
// translated to the idiomatic Go ini library used elsewhere in the
// retrieved dependency pack (gopkg.in/ini.v1) instead of hand-rolling an
// INI parser.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/ini.v1"
)

// MainConfig is the `[main]` section.
type MainConfig struct {
	Language              string `ini:"language"`
	BackgroundType        string `ini:"backgroundType"`
	Background            string `ini:"background"`
	WindowSize            string `ini:"windowSize"`
	LauncherMethod        string `ini:"launcherMethod"`
	UseSystemWindowFrame  bool   `ini:"useSystemWindowFrame"`
	HeadBarKeepRight      bool   `ini:"headBarKeepRight"`
	ResourceVersion       string `ini:"resourceVersion"`
	DeviceID              string `ini:"deviceID"`
}

// StyleConfig is the `[style]` section.
type StyleConfig struct {
	BlurEffect    string `ini:"blurEffect"`
	BlurRadius    int    `ini:"blurRadius"`
	FontPointSize int    `ini:"fontPointSize"`
	FontFamilies  string `ini:"fontFamilies"`
	Theme         string `ini:"theme"`
}

// NetConfig is the `[net]` section. Proxy of "true" means "use the system
// proxy"; otherwise it is a literal proxy URL, or empty for none.
type NetConfig struct {
	Thread int    `ini:"thread"`
	Proxy  string `ini:"proxy"`
}

// DevConfig is the `[dev]` section. Server is "auto" or a literal URL.
type DevConfig struct {
	Enable bool   `ini:"enable"`
	Debug  bool   `ini:"debug"`
	Server string `ini:"server"`
	TLS    bool   `ini:"tls"`
}

// OtherConfig is the `[other]` section.
type OtherConfig struct {
	TempFolder string `ini:"tempFolder"`
}

// MinecraftConfig is the `[minecraft]` section.
type MinecraftConfig struct {
	MinecraftFolder   string `ini:"minecraftFolder"`
	JavaPath          string `ini:"javaPath"`
	DownloadSource    string `ini:"downloadSource"`
	PlayerName        string `ini:"playerName"`
	Account           string `ini:"account"`
	UUID              string `ini:"uuid"`
	AccessToken       string `ini:"accessToken"`
	TargetVersion     string `ini:"targetVersion"`
	MaxMemoryLimit    int    `ini:"maxMemoryLimit"`
	MinMemoryLimit    int    `ini:"minMemoryLimit"`
	NeedMemoryLimit   int    `ini:"needMemoryLimit"`
	AuthlibName       string `ini:"authlibName"`
	AuthlibEnabled    bool   `ini:"authlibEnabled"`
	AuthlibPrefetched string `ini:"authlibPrefetched"`
	AuthlibSha256     string `ini:"authlibSha256"`
	TolerantMode      bool   `ini:"tolerantMode"`
	CustomResolution  string `ini:"customResolution"`
	JoinServerAddress string `ini:"joinServerAddress"`
	JoinServerPort    int    `ini:"joinServerPort"`
}

// LauncherConfig is the full persisted configuration document.
type LauncherConfig struct {
	Main      MainConfig      `ini:"main"`
	Style     StyleConfig     `ini:"style"`
	Net       NetConfig       `ini:"net"`
	Dev       DevConfig       `ini:"dev"`
	Other     OtherConfig     `ini:"other"`
	Minecraft MinecraftConfig `ini:"minecraft"`
}

// Default returns a LauncherConfig with reasonable out-of-box values.
func Default() LauncherConfig {
	return LauncherConfig{
		Main: MainConfig{
			Language:       "en",
			BackgroundType: "image",
			WindowSize:     "1280x720",
			LauncherMethod: "normal",
			ResourceVersion: "1",
		},
		Style: StyleConfig{
			BlurEffect:    "acrylic",
			BlurRadius:    18,
			FontPointSize: 10,
			Theme:         "dark",
		},
		Net: NetConfig{
			Thread: 8,
		},
		Dev: DevConfig{
			Server: "auto",
		},
		Minecraft: MinecraftConfig{
			DownloadSource:  "official",
			MaxMemoryLimit:  4096,
			MinMemoryLimit:  512,
			NeedMemoryLimit: 2048,
			AuthlibName:     "authlib-injector.jar",
			AuthlibEnabled:  true,
			JoinServerPort:  25565,
		},
	}
}

// Store is the thread-safe accessor over a LauncherConfig document,
// guarded by a reader-writer lock so concurrent readers never block each
// other and a writer never observes a torn read.
type Store struct {
	mu   sync.RWMutex
	cfg  LauncherConfig
	path string
}

// NewStore creates a Store backed by the INI file at path. If the file
// does not exist, the store starts from Default() and writes it out so a
// first run leaves a config file on disk.
func NewStore(path string) (*Store, error) {
	s := &Store{cfg: Default(), path: path}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(path); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := s.Save(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and parses the INI file at path, replacing the in-memory
// configuration wholesale.
func (s *Store) Load(path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var cfg LauncherConfig
	if err := file.MapTo(&cfg); err != nil {
		return fmt.Errorf("map config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.path = path
	s.mu.Unlock()
	return nil
}

// Save serializes the current in-memory configuration to path.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	file := ini.Empty()
	if err := file.ReflectFrom(&cfg); err != nil {
		return fmt.Errorf("reflect config: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// GetClientConfig returns a copy of the current configuration. Per the
// original implementation's doc comment, the copy may already be stale by
// the time the caller inspects it; callers needing a consistent
// read-modify-write should use UpdateClientConfig instead.
func (s *Store) GetClientConfig() LauncherConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateClientConfig takes the write lock, runs fn against the live
// configuration, and leaves the result in place — an atomic
// read-modify-write with no intervening reader able to observe a partial
// update.
func (s *Store) UpdateClientConfig(fn func(*LauncherConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Persist writes the current configuration back to the path it was
// opened with (or last explicitly Saved to).
func (s *Store) Persist() error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()
	return s.Save(path)
}
