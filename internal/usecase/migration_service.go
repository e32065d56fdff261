package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"time"

	"gorm.io/gorm"

	"keychain-agent/internal/domain"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureSchema(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	IsMigrationApplied(ctx context.Context, version string) (bool, error)
}

// MigrationService は鍵ストアのスキーマ移行を実行する。
type MigrationService struct {
	repo   MigrationRepository
	db     *gorm.DB
	source fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// sourceのルート直下にある {version}_{name}.sql を対象とする。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, source fs.FS) *MigrationService {
	return &MigrationService{
		repo:   repo,
		db:     db,
		source: source,
	}
}

// scanMigrationFiles はsourceから.sqlファイルを列挙し、バージョン順に返す。
func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(s.source, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMigrationFileNotFound, err)
	}

	var migrations []*domain.Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: version %s used by %s and %s", domain.ErrInvalidMigrationFile, version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: entry.Name(),
			Status:   domain.MigrationStatusPending,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// migrationFileRegex はバージョンを数字のみに限定する。
var migrationFileRegex = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// parseMigrationFileName は {version}_{name}.sql からバージョンと名前を取り出す。
func parseMigrationFileName(filename string) (version, name string, err error) {
	m := migrationFileRegex.FindStringSubmatch(filename)
	if m == nil {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return m[1], m[2], nil
}

// ApplyMigrations は未適用のマイグレーションをバージョン順に実行し、適用件数を返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("preparing schema_migrations: %w", err)
	}
	all, err := s.scanMigrationFiles()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	applied := 0
	for _, m := range all {
		done, err := s.repo.IsMigrationApplied(ctx, m.Version)
		if err != nil {
			return applied, fmt.Errorf("checking migration %s: %w", m.Version, err)
		}
		if done {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", m.Version,
				"error", err,
			)
			return applied, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, m.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"operation", "apply_migrations",
			"version", m.Version,
			"name", m.Name,
		)
		applied++
	}
	return applied, nil
}

// applyMigration はSQLの実行と履歴の記録を同一トランザクションで行う。
func (s *MigrationService) applyMigration(ctx context.Context, m *domain.Migration) error {
	sqlBytes, err := fs.ReadFile(s.source, m.FilePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", m.FilePath, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(string(sqlBytes)).Error; err != nil {
			return fmt.Errorf("executing %s: %w", m.FilePath, err)
		}
		record := map[string]interface{}{
			"version":    m.Version,
			"applied_at": time.Now().UTC(),
		}
		if err := tx.Table("schema_migrations").Create(record).Error; err != nil {
			return fmt.Errorf("recording version %s: %w", m.Version, err)
		}
		return nil
	})
}

// GetMigrationStatus は各マイグレーションの適用状況を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	all, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}

	if err := s.repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("preparing schema_migrations: %w", err)
	}
	appliedList, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}
	applied := make(map[string]*domain.Migration, len(appliedList))
	for _, m := range appliedList {
		applied[m.Version] = m
	}

	for _, m := range all {
		if a, ok := applied[m.Version]; ok {
			m.Status = domain.MigrationStatusApplied
			m.AppliedAt = a.AppliedAt
		}
	}
	return all, nil
}
