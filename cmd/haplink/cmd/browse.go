package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haplink/haplink/internal/browse"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List the drives available to the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if _, _, err := a.login(cmd.Context()); err != nil {
			return err
		}

		drives, err := a.client.ListDrives(cmd.Context())
		if err != nil {
			return err
		}

		snap := browse.FromDrives(drives, time.Now())
		for _, item := range snap.Items {
			ro := ""
			if !item.Writable {
				ro = "  [read-only]"
			}
			fmt.Printf("%-4s %-30s %s%s\n", item.Path, item.Name, item.Display, ro)
		}
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if _, _, err := a.login(cmd.Context()); err != nil {
			return err
		}

		listing, err := a.client.ListFolder(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		snap := browse.FromListing(args[0], listing, time.Now())
		for _, item := range snap.Items {
			marker := " "
			if item.Kind == browse.KindDirectory {
				marker = "d"
			}
			fmt.Printf("%s %-40s %s\n", marker, item.Name, item.Display)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(drivesCmd)
	rootCmd.AddCommand(lsCmd)
}
