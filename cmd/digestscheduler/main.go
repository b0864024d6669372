package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"DigestScheduler/internal/app"
	"DigestScheduler/internal/config"
	"DigestScheduler/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "digestscheduler",
	Short: "Per-user news digest scheduler",
	Long: `digestscheduler refreshes news for each due user, writes a report,
narrates it as a podcast and sends a push notification.

Examples:
  digestscheduler serve                  # Run cycles on the cron schedule
  digestscheduler cycle                  # Run one cycle and print its report
  digestscheduler run-user u1            # Run one user's pipeline now
  digestscheduler users import users.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults to $DIGEST_SCHEDULER_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(runUserCmd)
	rootCmd.AddCommand(usersCmd)
}

// openApp loads configuration and builds the application for one command.
func openApp(ctx context.Context) (*app.Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return app.New(ctx, cfg, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
