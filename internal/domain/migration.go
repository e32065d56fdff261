package domain

import "time"

// MigrationStatus は鍵ストアのスキーマ移行の適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration は鍵ストアのスキーマ移行1件を表す
type Migration struct {
	Version   string          // バージョン（例: "001", "002"）
	Name      string          // ファイル名から抽出した名前
	AppliedAt *time.Time      // 適用日時（未適用の場合はnil）
	FilePath  string          // マイグレーションソース内のパス
	Status    MigrationStatus // 適用状態
}

