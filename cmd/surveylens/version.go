// Version command for the surveylens CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/surveylens"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the surveylens version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("surveylens", surveylens.Version)
	},
}
