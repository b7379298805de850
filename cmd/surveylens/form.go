// Form commands for the surveylens CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Manage stored form definitions",
}

var (
	flagFormTitle   string
	flagFormVersion string
	flagFormMedia   []string
	flagFormScan    bool
)

func init() {
	formAddCmd.Flags().StringVar(&flagFormTitle, "title", "", "human-readable form title")
	formAddCmd.Flags().StringVar(&flagFormVersion, "form-version", "", "form definition version")
	formAddCmd.Flags().StringArrayVar(&flagFormMedia, "media", nil, "media file to attach (repeatable)")
	formListCmd.Flags().BoolVar(&flagFormScan, "scan", false, "rescan the storage tree instead of serving the cache")

	formCmd.AddCommand(formListCmd)
	formCmd.AddCommand(formAddCmd)
	formCmd.AddCommand(formShowCmd)
	formCmd.AddCommand(formDeleteCmd)
}

var formListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "form list:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		forms, err := app.store.ListForms(flagFormScan)
		if err != nil {
			return fmt.Errorf("list forms: %w", err)
		}

		return emit(forms, func() {
			for _, f := range forms {
				fmt.Printf("%s\t%s\tv%s\t%d instance(s)\n", f.FormID, f.Title, f.Version, f.InstanceCount)
			}
		})
	},
}

var formAddCmd = &cobra.Command{
	Use:   "add <form-id> <definition-file>",
	Short: "Store a form definition from a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, defPath := args[0], args[1]

		definition, err := os.ReadFile(defPath)
		if err != nil {
			return fmt.Errorf("read definition: %w", err)
		}

		media := make(map[string][]byte)
		for _, path := range flagFormMedia {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read media %s: %w", path, err)
			}
			media[filepath.Base(path)] = data
		}

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "form add:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		meta := types.FormMetadata{
			FormID:  formID,
			Title:   flagFormTitle,
			Version: flagFormVersion,
		}
		if err := app.store.SaveForm(meta, definition, media); err != nil {
			return fmt.Errorf("save form: %w", err)
		}

		fmt.Println("Form stored:", formID)
		return nil
	},
}

var formShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Show form metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "form show:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		meta, err := app.store.FormMeta(args[0])
		if err != nil {
			return fmt.Errorf("read form: %w", err)
		}
		if meta == nil {
			return fmt.Errorf("form %q not found", args[0])
		}

		return emit(meta, func() {
			fmt.Println("Form:      ", meta.FormID)
			fmt.Println("Title:     ", meta.Title)
			fmt.Println("Version:   ", meta.Version)
			fmt.Println("Hash:      ", meta.Hash)
			fmt.Println("Media:     ", meta.MediaCount)
			fmt.Println("Instances: ", meta.InstanceCount)
		})
	},
}

var formDeleteCmd = &cobra.Command{
	Use:   "delete <form-id>",
	Short: "Delete a form and all of its instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "form delete:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		if err := app.store.DeleteForm(args[0]); err != nil {
			return fmt.Errorf("delete form: %w", err)
		}

		fmt.Println("Form deleted:", args[0])
		return nil
	},
}
