package domain

import (
	"encoding/json"
	"fmt"
)

// FulfillmentResult は1件のリクエストに対する鍵生成結果。
type FulfillmentResult struct {
	RequestID uint64
	PublicKey []byte
}

// Batch は1回の実行で送信する生成結果の列。取得順を保持する。
type Batch []FulfillmentResult

// RequestIDs はバッチ内のリクエストIDを順番通りに返す。
func (b Batch) RequestIDs() []uint64 {
	ids := make([]uint64, len(b))
	for i, r := range b {
		ids[i] = r.RequestID
	}
	return ids
}

// Coin は手数料通貨の金額を表す。
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// FeeBudget はトランザクションの手数料とガス上限。
type FeeBudget struct {
	Amount   []Coin
	GasLimit uint64
}

// UpdateKeyRequestOp はリクエスト1件のステータスを更新するバッチ操作。
type UpdateKeyRequestOp struct {
	Creator   string
	RequestID uint64
	Status    KeyRequestStatus
	PublicKey []byte
}

// TxResult は台帳へのブロードキャスト結果。
type TxResult struct {
	Code      uint32
	TxHash    string
	Height    int64
	RawLog    string
	GasWanted int64
	GasUsed   int64
	// Raw は台帳が返したペイロードそのもの。
	Raw json.RawMessage
}

// OK は全操作がコミットされたかどうかを返す。
func (r *TxResult) OK() bool {
	return r.Code == 0
}

// RunOutcomeKind は1回の実行結果の種別。
type RunOutcomeKind string

const (
	RunOutcomeNoWork  RunOutcomeKind = "no_work"
	RunOutcomeSuccess RunOutcomeKind = "success"
	RunOutcomeFailed  RunOutcomeKind = "failed"
)

// RunOutcome は1回の実行結果を表す。
type RunOutcome struct {
	Kind      RunOutcomeKind
	TxHash    string
	Fulfilled []uint64
	Result    *TxResult
}

// RejectedError は台帳がトランザクションを拒否した場合のエラー。
type RejectedError struct {
	Result *TxResult
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: code=%d tx_hash=%s raw_log=%s", ErrLedgerRejected, e.Result.Code, e.Result.TxHash, e.Result.RawLog)
}

func (e *RejectedError) Unwrap() error {
	return ErrLedgerRejected
}
