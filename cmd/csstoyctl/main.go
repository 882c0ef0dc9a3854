// Command csstoyctl performs maintenance on a csstoy database: applying
// migrations, repairing drifted counters, and granting the admin role.
//
//	csstoyctl migrate
//	csstoyctl recount
//	csstoyctl promote alice
//
// The database path comes from --db, then DB_PATH (a .env file is read
// if present), then data/csstoy.db.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/csstoy/internal/auth"
	sqliteRepo "github.com/sakif/csstoy/internal/repository/sqlite"
	"github.com/sakif/csstoy/internal/service"
)

const defaultDBPath = "data/csstoy.db"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
		os.Exit(1)
	}
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Output goes to out so tests can
// capture it.
func newRootCmd(out io.Writer) *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:           "csstoyctl",
		Short:         "Maintenance commands for a csstoy database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&dbPath, "db", envOr("DB_PATH", defaultDBPath), "path to the SQLite database")

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureDir(dbPath); err != nil {
				return err
			}
			db, err := sqliteRepo.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "applied %d %s (%s)\n", r.Source.Version, r.Source.Path, r.Duration)
			}
			return nil
		},
	}

	recountCmd := &cobra.Command{
		Use:   "recount",
		Short: "Rebuild like, collection and comment counters from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(dbPath, func(db *sqliteRepo.DB) error {
				svc := service.NewInteractionService(db.Ledger(), nil, logger)
				n, err := svc.Recount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "repaired %d snippet(s)\n", n)
				return nil
			})
		},
	}

	promoteCmd := &cobra.Command{
		Use:   "promote <username>",
		Short: "Grant the admin role to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(dbPath, func(db *sqliteRepo.DB) error {
				// Promote never hashes, so the bcrypt cost is irrelevant.
				svc := service.NewUserService(db.Users(), auth.NewPasswordService(0), logger)
				if err := svc.Promote(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s is now an admin\n", args[0])
				return nil
			})
		},
	}

	root.AddCommand(migrateCmd, recountCmd, promoteCmd)
	root.SetContext(context.Background())
	return root
}

// withDB opens (and migrates) the database for the duration of fn.
func withDB(path string, fn func(*sqliteRepo.DB) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	db, err := sqliteRepo.New(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dbPath), 0o755)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
