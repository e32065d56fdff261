package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"keychain-agent/config"
	"keychain-agent/internal/infra"
	"keychain-agent/internal/repository"
	"keychain-agent/internal/usecase"
	"keychain-agent/migrations"
)

// migrateCmd は鍵ストアのスキーマ移行コマンド。
func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Manage database migrations for the key store (KEY_GENERATOR=kms)",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (defaults to the embedded migrations for DATABASE_DRIVER)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply all pending migrations to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrationService, err := newMigrationService(dir)
			if err != nil {
				return err
			}

			// マイグレーション実行
			appliedCount, err := migrationService.ApplyMigrations(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if appliedCount == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrationService, err := newMigrationService(dir)
			if err != nil {
				return err
			}

			migrations, err := migrationService.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "-------\t----\t------\t----------")

			for _, m := range migrations {
				appliedAt := "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Version, m.Name, m.Status, appliedAt)
			}

			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		},
	})
	return cmd
}

// newMigrationService はDATABASE_DRIVER/DATABASE_URLに接続したMigrationServiceを生成する。
func newMigrationService(dir string) (*usecase.MigrationService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var source fs.FS
	if dir != "" {
		source = os.DirFS(dir)
	} else if source, err = migrations.For(cfg.DatabaseDriver); err != nil {
		return nil, err
	}

	// データベース接続
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return usecase.NewMigrationService(repository.NewMigrationRepository(db), db, source), nil
}
