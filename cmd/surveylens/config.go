// Config loading for the surveylens CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys mirroring types.Config.
	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyMaxEdits      = "max_edits"
	cfgKeyDebounceMS    = "debounce_ms"
	cfgKeyEncryptDrafts = "encrypt_drafts"
	cfgKeySyncEndpoint  = "sync_endpoint"

	defaultBackend = types.BackendFile
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Surveylens CLI configuration

# Persistence backend: memory, file, or sqlite
backend: file

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Draft tuning (optional; defaults shown)
# max_edits: 100
# debounce_ms: 800

# Encrypt draft records at rest. Instance payloads are always encrypted.
encrypt_drafts: false

# Submission endpoint used by "surveylens sync" (overridable by --endpoint)
# sync_endpoint:
`

// loadConfig reads config.yaml from the resolved config directory using
// Viper. It creates the config directory and a default config.yaml on first
// run. A missing config.yaml is not an error.
func loadConfig(configDir string) (types.Config, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return types.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}

	if err := ensureDefaultConfigFile(configDir); err != nil {
		return types.Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	configSyncEndpoint = v.GetString(cfgKeySyncEndpoint)

	return types.Config{
		Backend:        v.GetString(cfgKeyBackend),
		DataDir:        v.GetString(cfgKeyDataDir),
		MaxEdits:       v.GetInt(cfgKeyMaxEdits),
		DebounceMillis: v.GetInt(cfgKeyDebounceMS),
		EncryptDrafts:  v.GetBool(cfgKeyEncryptDrafts),
	}, nil
}

// configSyncEndpoint holds the sync_endpoint value from config.yaml. It is
// CLI-only tuning, so it stays out of types.Config.
var configSyncEndpoint string

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		// File already exists.
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
