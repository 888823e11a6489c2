package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/punchamoorthee/mymoney/internal/app"
	"github.com/punchamoorthee/mymoney/internal/config"
	"github.com/punchamoorthee/mymoney/internal/service"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mymoneyctl",
	Short: "Run and maintain the mymoney ledger service",
	Long: `mymoneyctl serves the mymoney API and runs its maintenance jobs.
Configuration comes from the TOML file given with --config, overridden by
environment variables (DB_SOURCE, SERVER_PORT, WEEK_START, CLONE_LIMIT...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "mymoney.toml", "Path to the TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cloneScheduledCmd)
	rootCmd.AddCommand(deleteOrphansCmd)

	cloneScheduledCmd.Flags().Int("limit", -1, "Maximum number of schedulers to clone (default: clone_limit from config, 0 for no limit)")
	cloneScheduledCmd.Flags().Bool("strict", false, "Exit with an error when a scheduler failed to clone")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// open loads the configuration and connects to the database.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, cfg.Logger(os.Stderr))
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the schema and start the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(cmd.Context()); err != nil {
			return err
		}
		return a.Serve(cmd.Context())
	},
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

// ─── clonescheduled ─────────────────────────────────────────────────────────

var cloneScheduledCmd = &cobra.Command{
	Use:   "clonescheduled",
	Short: "Clone every recurring transaction that is due",
	Long: `Clone the schedulers whose period has elapsed into new transactions.
A failing scheduler is marked failed and the sweep goes on with the next one.
Failures are reported but the command succeeds unless --strict is given.
Meant to be run periodically, e.g. daily from cron.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		strict, _ := cmd.Flags().GetBool("strict")
		if limit < 0 {
			limit = a.Config.CloneLimit
		}

		res, err := a.Schedulers.CloneAwaiting(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sweepReport(res))
		return sweepError(res, strict)
	},
}

func sweepReport(res service.CloneResult) string {
	msg := fmt.Sprintf("Processed %d scheduler(s): %d cloned, %d failed", res.Processed, res.Cloned, res.Failed)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(", %d already handled", res.Skipped)
	}
	return msg + "."
}

// sweepError fails the command on failed clones only in strict mode. The
// failed schedulers keep their state either way.
func sweepError(res service.CloneResult, strict bool) error {
	if strict && res.Failed > 0 {
		return fmt.Errorf("%d scheduler(s) failed", res.Failed)
	}
	return nil
}

// ─── deleteorphans ──────────────────────────────────────────────────────────

var deleteOrphansCmd = &cobra.Command{
	Use:   "deleteorphans",
	Short: "Delete the bank accounts left without owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Accounts.DeleteOrphans(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphan account(s).\n", n)
		return nil
	},
}
