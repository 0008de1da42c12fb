package cmd

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/haplink/haplink/internal/fileops"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <remote-path>",
	Short: "Download a file",
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

		local, err := a.coord.DownloadSingle(cmd.Context(), args[0], func(transferred, total int64) {
			if total > 0 {
				fmt.Printf("\r%s / %s", humanize.IBytes(uint64(transferred)), humanize.IBytes(uint64(total)))
			}
		})
		if err != nil {
			return err
		}
		fmt.Println()

		dest := getOutput
		if dest == "" {
			dest = path.Base(args[0])
		}
		if err := copyFile(local, dest); err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", dest)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local-file>... <remote-folder>",
	Short: "Upload files into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if _, _, err := a.login(cmd.Context()); err != nil {
			return err
		}

		folder := args[len(args)-1]
		srcs := make([]fileops.LocalFile, 0, len(args)-1)
		for _, p := range args[:len(args)-1] {
			srcs = append(srcs, fileops.LocalFile{Path: p, KeepLocal: true})
		}

		outs := a.coord.UploadBatch(cmd.Context(), srcs, folder, func(i, total int, name string) {
			fmt.Printf("[%d/%d] %s\n", i, total, name)
		})
		return reportOutcomes(outs)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <remote-path>",
	Short: "Delete a file or folder",
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

		if err := a.coord.DeleteSingle(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <parent-path> <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if _, _, err := a.login(cmd.Context()); err != nil {
			return err
		}

		name, err := a.coord.CreateFolder(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Created %s/%s\n", args[0], name)
		return nil
	},
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "local destination path")
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mkdirCmd)
}
