package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// app carries what every subcommand needs once the root pre-run has loaded
// the environment.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	dbPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fintrackctl",
		Short:         "Administer a fintrack database",
		Long:          `fintrackctl runs schema migrations, seeds demo data, prints reports and bootstraps the Google Sheets token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			a.cfg = config.Load()
			if a.dbPath != "" {
				a.cfg.SQLiteDBPath = a.dbPath
			}
			a.logger = cli.SetupLogger(a.cfg, applog.ComponentCLI)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default: $SQLITE_DB_PATH)")

	root.AddCommand(migrateCmd(a))
	root.AddCommand(seedCmd(a))
	root.AddCommand(reportCmd(a))
	root.AddCommand(oauthCmd(a))
	return root
}

// openRepo opens the configured database, applying pending migrations.
func (a *app) openRepo() (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(a.cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.SQLiteDBPath, err)
	}
	return repo, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
