// Init command for the surveylens CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize surveylens configuration and storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Config dir and default config.yaml already exist: the root
		// PersistentPreRunE created them. This command materializes the
		// data tree as well and reports both locations.
		configDir, err := resolveConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		fmt.Println("Surveylens initialized successfully")
		fmt.Println("  config:", configDir)
		fmt.Println("  data:  ", app.cfg.DataDir)
		fmt.Println("  backend:", app.cfg.Backend)
		return nil
	},
}
