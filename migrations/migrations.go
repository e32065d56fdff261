// Package migrations は鍵ストアのスキーマ定義をドライバごとに埋め込む。
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed mysql/*.sql postgres/*.sql sqlite/*.sql
var files embed.FS

// For は指定ドライバ用のマイグレーションSQLを返す。
func For(driver string) (fs.FS, error) {
	switch driver {
	case "mysql", "postgres", "sqlite":
		return fs.Sub(files, driver)
	default:
		return nil, fmt.Errorf("no migrations for database driver %q", driver)
	}
}
