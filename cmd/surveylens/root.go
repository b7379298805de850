// Root command for the surveylens CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/paths"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/surveylens"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// Exit codes: 0 success, 1 user error, 2 system error.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
)

// loadedConfig holds the values read from config.yaml. Set by
// PersistentPreRunE so all subcommands can use it.
var loadedConfig types.Config

var rootCmd = &cobra.Command{
	Use:     "surveylens",
	Short:   "Surveylens manages offline form drafts, instances, and submissions",
	Version: surveylens.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		loadedConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: platform data dir)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(formCmd)
	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(syncCmd)
}

// resolveDataDir returns the data directory path following the precedence:
// --data-dir flag > config.yaml data_dir > SURVEYLENS_DATA_DIR env > default.
func resolveDataDir() (string, error) {
	return paths.ResolveDataDir(flagDataDir, loadedConfig.DataDir)
}

// resolveConfigDir returns the configuration directory following the
// precedence: --config-dir flag > SURVEYLENS_CONFIG_DIR env > default.
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}
