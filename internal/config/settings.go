package config

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"nekolauncher/internal/storage"
)

// Keys for runtime settings kept in the KV app_settings table rather than
// the INI document — values that are operational rather than
// user-facing preferences: the control-plane API's bearer token, its
// listen port, and a couple of toggles the GUI does not surface directly.
const (
	KeyControlAPIEnabled        = "control_api_enabled"
	KeyControlAPIToken          = "control_api_token"
	KeyEnableIntegrityCheck     = "enable_integrity_check"
	KeyControlAPIPort           = "control_api_port"
	KeyControlAPIMaxConcurrent  = "control_api_max_concurrent"
	KeyUserAgentOverride        = "user_agent_override"
)

// RuntimeSettings is a thin typed wrapper over storage's generic KV
// settings table, used for values that do not belong in the INI document.
type RuntimeSettings struct {
	storage *storage.Storage
}

// NewRuntimeSettings wraps a Storage for runtime-settings access.
func NewRuntimeSettings(s *storage.Storage) *RuntimeSettings {
	return &RuntimeSettings{storage: s}
}

func (c *RuntimeSettings) GetControlAPIPort() int {
	valStr, err := c.storage.GetString(KeyControlAPIPort)
	if err != nil || valStr == "" {
		return 47821
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 47821
	}
	return val
}

func (c *RuntimeSettings) SetControlAPIPort(port int) error {
	return c.storage.SetString(KeyControlAPIPort, strconv.Itoa(port))
}

func (c *RuntimeSettings) GetControlAPIMaxConcurrent() int {
	valStr, err := c.storage.GetString(KeyControlAPIMaxConcurrent)
	if err != nil || valStr == "" {
		return 5
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 5
	}
	return val
}

func (c *RuntimeSettings) SetControlAPIMaxConcurrent(max int) error {
	return c.storage.SetString(KeyControlAPIMaxConcurrent, strconv.Itoa(max))
}

func (c *RuntimeSettings) GetControlAPIEnabled() bool {
	val, err := c.storage.GetString(KeyControlAPIEnabled)
	if err != nil {
		return false
	}
	return val == "true"
}

func (c *RuntimeSettings) SetControlAPIEnabled(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyControlAPIEnabled, val)
}

// GetControlAPIToken returns the bearer token the loopback control API
// requires, generating and persisting one on first use.
func (c *RuntimeSettings) GetControlAPIToken() string {
	val, err := c.storage.GetString(KeyControlAPIToken)
	if err != nil || val == "" {
		token := generateSecureToken()
		c.storage.SetString(KeyControlAPIToken, token)
		return token
	}
	return val
}

func (c *RuntimeSettings) GetEnableIntegrityCheck() bool {
	val, err := c.storage.GetString(KeyEnableIntegrityCheck)
	if err != nil {
		return true
	}
	return val != "false"
}

func (c *RuntimeSettings) SetEnableIntegrityCheck(enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return c.storage.SetString(KeyEnableIntegrityCheck, val)
}

func generateSecureToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "nekolauncher-fallback-token-change-me"
	}
	return hex.EncodeToString(b)
}

// GetUserAgentOverride returns a custom User-Agent string for the network
// engine, or "" if the caller should fall back to the default.
func (c *RuntimeSettings) GetUserAgentOverride() string {
	val, err := c.storage.GetString(KeyUserAgentOverride)
	if err != nil {
		return ""
	}
	return val
}

func (c *RuntimeSettings) SetUserAgentOverride(ua string) error {
	return c.storage.SetString(KeyUserAgentOverride, ua)
}

// FactoryReset clears every runtime setting back to its default.
func (c *RuntimeSettings) FactoryReset() error {
	keys := []string{
		KeyControlAPIEnabled,
		KeyControlAPIToken,
		KeyEnableIntegrityCheck,
		KeyControlAPIPort,
		KeyControlAPIMaxConcurrent,
		KeyUserAgentOverride,
	}
	for _, key := range keys {
		if err := c.storage.SetString(key, ""); err != nil {
			return err
		}
	}
	return nil
}
