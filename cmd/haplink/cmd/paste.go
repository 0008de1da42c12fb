package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haplink/haplink/internal/fileops"
	"github.com/haplink/haplink/internal/prefs"
)

func markForPaste(paths []string, move bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	items := make([]prefs.PasteItem, 0, len(paths))
	for _, p := range paths {
		items = append(items, prefs.PasteItem{OldPath: p, Move: move})
	}
	if err := a.store.SetPasteItems(items); err != nil {
		return err
	}

	verb := "copy"
	if move {
		verb = "move"
	}
	fmt.Printf("Marked %d item(s) for %s\n", len(items), verb)
	return nil
}

var cutCmd = &cobra.Command{
	Use:   "cut <remote-path>...",
	Short: "Mark files to be moved by the next paste",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markForPaste(args, true)
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <remote-path>...",
	Short: "Mark files to be copied by the next paste",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markForPaste(args, false)
	},
}

var pasteCmd = &cobra.Command{
	Use:   "paste <dest-folder>",
	Short: "Apply the pending cut/copy into a folder",
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

		items, err := a.store.PasteItems()
		if err != nil {
			return err
		}

		outs, err := a.coord.PasteBatch(cmd.Context(), items, args[0])
		if errors.Is(err, fileops.ErrNothingToDo) {
			fmt.Println("Nothing to paste")
			return nil
		}
		if err != nil {
			reportOutcomes(outs)
			return err
		}
		return reportOutcomes(outs)
	},
}

func init() {
	rootCmd.AddCommand(cutCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(pasteCmd)
}
