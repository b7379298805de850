// Draft commands for the surveylens CLI.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/draft"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Edit in-progress form drafts",
}

var flagDraftName string

func init() {
	draftFinalizeCmd.Flags().StringVar(&flagDraftName, "name", "", "display name for the saved instance")

	draftCmd.AddCommand(draftSetCmd)
	draftCmd.AddCommand(draftGetCmd)
	draftCmd.AddCommand(draftFinalizeCmd)
}

var draftSetCmd = &cobra.Command{
	Use:   "set <form-id> <instance-id> <field-path> <value>",
	Short: "Set a draft field and save",
	Long: `Set writes one answer into a draft and persists it immediately.

The field path is dot/bracket addressed into the draft data, for example
household.members[2].age. The value is parsed as JSON when possible and
stored as a raw string otherwise.

Example:
  surveylens draft set census i1 name '"Ann"'
  surveylens draft set census i1 household.members[0].age 34`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, instanceID, path, raw := args[0], args[1], args[2], args[3]

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "draft set:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		d, err := app.openDraft(formID, instanceID)
		if err != nil {
			return fmt.Errorf("open draft: %w", err)
		}

		if err := d.UpdateField(path, parseValueArg(raw)); err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		if err := d.SaveNow(); err != nil {
			return fmt.Errorf("save draft: %w", err)
		}

		fmt.Println("Draft saved:", d.InstanceID())
		return nil
	},
}

var draftGetCmd = &cobra.Command{
	Use:   "get <form-id> <instance-id> [field-path]",
	Short: "Print draft data or a single field",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, instanceID := args[0], args[1]

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "draft get:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		d, err := app.openDraft(formID, instanceID)
		if err != nil {
			return fmt.Errorf("open draft: %w", err)
		}

		var out any
		if len(args) == 3 {
			out, err = d.GetField(args[2])
			if err != nil {
				return fmt.Errorf("get field: %w", err)
			}
		} else {
			out = d.Data()
		}

		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode draft: %w", err)
		}
		fmt.Println(string(raw))
		return nil
	},
}

var draftFinalizeCmd = &cobra.Command{
	Use:   "finalize <form-id> <instance-id>",
	Short: "Finalize a draft and queue it for submission",
	Long: `Finalize locks the draft against further edits, exports it as an
instance payload into storage, and adds a pending entry to the
submission queue.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, instanceID := args[0], args[1]

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "draft finalize:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		d, err := app.openDraft(formID, instanceID)
		if err != nil {
			return fmt.Errorf("open draft: %w", err)
		}

		if _, err := d.Finalize(); err != nil {
			var verr *draft.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintln(os.Stderr, "draft has validation issues:")
				for _, issue := range verr.Issues {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", issue.Field, issue.Message)
				}
				os.Exit(exitUserError)
			}
			return fmt.Errorf("finalize draft: %w", err)
		}

		payload, err := json.Marshal(d.Export())
		if err != nil {
			return fmt.Errorf("encode instance: %w", err)
		}

		if err := app.store.SaveInstance(formID, instanceID, payload, nil, types.InstanceMetadata{
			DisplayName: flagDraftName,
		}); err != nil {
			return fmt.Errorf("save instance: %w", err)
		}
		if err := app.store.FinalizeInstance(formID, instanceID, app.queue); err != nil {
			return fmt.Errorf("queue instance: %w", err)
		}

		fmt.Println("Instance queued for submission:", instanceID)
		return nil
	},
}
