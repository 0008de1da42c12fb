package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials against the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		sess, autoLogout, err := a.login(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Logged in to %s as %s", sess.SiteName, sess.Username)
		if sess.FirstName != "" {
			fmt.Printf(" (%s)", sess.FirstName)
		}
		fmt.Println()
		if autoLogout.Enabled {
			fmt.Printf("Auto-logout scheduled for %s\n", autoLogout.LogoutAt.Format("15:04"))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear local session state and any pending paste",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.manager.Logout()
		fmt.Println("Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
