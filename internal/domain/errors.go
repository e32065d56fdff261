package domain

import "errors"

var (
	// ErrLedgerRead は台帳からのリクエスト取得に失敗した場合のエラー。
	ErrLedgerRead = errors.New("ledger read failed")

	// ErrGeneration は鍵生成に失敗した場合のエラー。
	ErrGeneration = errors.New("key generation failed")

	// ErrInvalidBatchSize は空バッチで手数料を見積もった場合のエラー。
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrLedgerSubmit はトランザクション送信時の通信エラー。コミットされたかは不明。
	ErrLedgerSubmit = errors.New("ledger submit failed")

	// ErrLedgerRejected は台帳がトランザクションを拒否した場合のエラー。
	ErrLedgerRejected = errors.New("transaction rejected by ledger")

	// ErrSigner は送信者アカウントの解決に失敗した場合のエラー。
	ErrSigner = errors.New("signer account unavailable")

	// ErrRequestIDMismatch は生成結果とリクエストのIDが一致しない場合のエラー。
	ErrRequestIDMismatch = errors.New("request id mismatch")

	// ErrInvalidKeyRequest は取得したリクエストが処理対象として不正な場合のエラー。
	ErrInvalidKeyRequest = errors.New("invalid key request")

	// ErrInvalidConfig は設定値が不正な場合のエラー。
	ErrInvalidConfig = errors.New("invalid config")

	// ErrKeyNotFound は指定されたリクエストIDの鍵が存在しない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnsupportedKeyType は生成できない鍵種別が要求された場合のエラー。
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrRunInProgress は同じキーチェーンの実行が既に進行中の場合のエラー。
	ErrRunInProgress = errors.New("fulfillment run already in progress")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
