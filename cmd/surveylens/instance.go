// Instance commands for the surveylens CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage saved form instances",
}

var flagInstanceData bool

func init() {
	instanceShowCmd.Flags().BoolVar(&flagInstanceData, "data", false, "print the decrypted payload instead of metadata")

	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceShowCmd)
	instanceCmd.AddCommand(instanceDeleteCmd)
}

var instanceListCmd = &cobra.Command{
	Use:   "list <form-id>",
	Short: "List saved instances of a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "instance list:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		instances, err := app.store.ListInstances(args[0])
		if err != nil {
			return fmt.Errorf("list instances: %w", err)
		}

		return emit(instances, func() {
			for _, in := range instances {
				fmt.Printf("%s\t%s\t%s\n", in.InstanceID, in.Status, in.DisplayName)
			}
		})
	},
}

var instanceShowCmd = &cobra.Command{
	Use:   "show <form-id> <instance-id>",
	Short: "Show instance metadata or payload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, instanceID := args[0], args[1]

		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "instance show:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		if flagInstanceData {
			payload, err := app.store.InstanceData(formID, instanceID)
			if err != nil {
				return fmt.Errorf("read instance: %w", err)
			}
			if payload == nil {
				return fmt.Errorf("instance %q not found", instanceID)
			}
			os.Stdout.Write(payload)
			fmt.Println()
			return nil
		}

		meta, err := app.store.InstanceMeta(formID, instanceID)
		if err != nil {
			return fmt.Errorf("read instance: %w", err)
		}
		if meta == nil {
			return fmt.Errorf("instance %q not found", instanceID)
		}

		return emit(meta, func() {
			fmt.Println("Instance: ", meta.InstanceID)
			fmt.Println("Form:     ", meta.FormID)
			fmt.Println("Name:     ", meta.DisplayName)
			fmt.Println("Status:   ", meta.Status)
			if meta.SubmittedAt != nil {
				fmt.Println("Submitted:", meta.SubmittedAt.Format("2006-01-02 15:04:05"))
			}
		})
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete <form-id> <instance-id>",
	Short: "Delete a saved instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "instance delete:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		if err := app.store.DeleteInstance(args[0], args[1]); err != nil {
			return fmt.Errorf("delete instance: %w", err)
		}

		fmt.Println("Instance deleted:", args[1])
		return nil
	},
}
