package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haplink/haplink/internal/logging"
	"github.com/haplink/haplink/internal/metrics"
	"github.com/haplink/haplink/internal/timetable"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Hold a session open with keepalive and auto-logout",
	Long: `Logs in and keeps the session alive in the foreground, the way the
graphical clients do: periodic keepalive pings, automatic re-login when
the session goes stale, and timetable-driven auto-logout on shared
devices. Stops on Ctrl-C or when the timetable forces a logout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		sess, autoLogout, err := a.login(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Session open for %s on %s\n", sess.Username, sess.SiteName)

		a.manager.StartKeepAlive(ctx)
		defer a.manager.StopKeepAlive()

		forced := make(chan struct{})
		runner := timetable.NewRunner(cfg.AutoLogoutPeriod, time.Now,
			func(remaining time.Duration) {
				fmt.Printf("Warning: automatic logout in %s\n", remaining.Round(time.Minute))
			},
			func() {
				a.manager.Logout()
				close(forced)
			})
		a.manager.OnLogout(runner.Stop)
		if autoLogout.Enabled {
			fmt.Printf("Auto-logout scheduled for %s\n", autoLogout.LogoutAt.Format("15:04"))
			runner.SetState(autoLogout)
			runner.Start()
			defer runner.Stop()
		}

		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					logging.Warn("metrics endpoint failed", logging.Err(err))
				}
			}()
			fmt.Printf("Metrics on %s/metrics\n", cfg.MetricsAddr)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, logging out...\n", sig)
			a.manager.Logout()
		case <-forced:
			fmt.Println("Timetable forced a logout")
		case <-ctx.Done():
			a.manager.Logout()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
