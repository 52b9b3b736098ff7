// Package config loads host/viewer settings from a user-level and a
// project-level JSON file, merging project over user over built-in
// defaults -- the same two-tier Manager shape used across the rest of
// the collaborator stack this core was split out of.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the tunable knobs a host/viewer CLI invocation cares
// about. Crypto parameters (Argon2id, AEAD) are not configurable here:
// those live in internal/keys and may only be strengthened, never
// weakened, per spec §4.3.
type Config struct {
	BrokerURL         string `json:"broker_url,omitempty"`
	SessionTTLSeconds int    `json:"session_ttl_seconds,omitempty"`
	HeartbeatMillis   int    `json:"heartbeat_millis,omitempty"`
	DeltaBudget       int    `json:"delta_budget,omitempty"`
	SnapshotBudget    int    `json:"snapshot_budget,omitempty"`
	LogLevel          string `json:"log_level,omitempty"`
	LogFile           string `json:"log_file,omitempty"`
}

// Manager merges a user config (~/.beach/settings.json) and a project
// config (./.beach/settings.json), project taking priority.
type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config
}

func NewManager() *Manager {
	return &Manager{
		userConfig:    &Config{},
		projectConfig: &Config{},
		merged:        &Config{},
	}
}

func (m *Manager) Load(userConfigDir, projectDir string) error {
	userConfigPath := filepath.Join(userConfigDir, "settings.json")
	if err := m.loadConfig(userConfigPath, m.userConfig); err != nil {
		return err
	}

	projectConfigPath := filepath.Join(projectDir, ".beach", "settings.json")
	if err := m.loadConfig(projectConfigPath, m.projectConfig); err != nil {
		return err
	}

	m.mergeConfigs()
	return nil
}

func (m *Manager) loadConfig(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, config)
}

func (m *Manager) mergeConfigs() {
	m.merged = &Config{
		BrokerURL:         getString(m.userConfig.BrokerURL, m.projectConfig.BrokerURL, "wss://broker.beach.sh/ws"),
		SessionTTLSeconds: getInt(m.userConfig.SessionTTLSeconds, m.projectConfig.SessionTTLSeconds, 3600),
		HeartbeatMillis:   getInt(m.userConfig.HeartbeatMillis, m.projectConfig.HeartbeatMillis, 250),
		DeltaBudget:       getInt(m.userConfig.DeltaBudget, m.projectConfig.DeltaBudget, 512),
		SnapshotBudget:    getInt(m.userConfig.SnapshotBudget, m.projectConfig.SnapshotBudget, 500),
		LogLevel:          getString(m.userConfig.LogLevel, m.projectConfig.LogLevel, "info"),
		LogFile:           getString(m.userConfig.LogFile, m.projectConfig.LogFile, ""),
	}
}

func getString(user, project, defaultValue string) string {
	if project != "" {
		return project
	}
	if user != "" {
		return user
	}
	return defaultValue
}

func getInt(user, project, defaultValue int) int {
	if project != 0 {
		return project
	}
	if user != 0 {
		return user
	}
	return defaultValue
}

func (m *Manager) Get() *Config {
	return m.merged
}

func (m *Manager) SaveUserConfig(userConfigDir string) error {
	configPath := filepath.Join(userConfigDir, "settings.json")
	if err := os.MkdirAll(userConfigDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.userConfig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o644)
}
