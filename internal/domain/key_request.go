// Package domain はドメインモデルとビジネスルールを定義する。
package domain

// KeyRequestStatus は台帳上の鍵生成リクエストのステータスを表す。
type KeyRequestStatus string

const (
	// KeyRequestStatusUnspecified は台帳のenumのゼロ値。
	KeyRequestStatusUnspecified KeyRequestStatus = "KEY_REQUEST_STATUS_UNSPECIFIED"
	// KeyRequestStatusPending は未処理のリクエストを表す。
	KeyRequestStatusPending KeyRequestStatus = "KEY_REQUEST_STATUS_PENDING"
	// KeyRequestStatusFulfilled は鍵が生成済みのリクエストを表す。
	KeyRequestStatusFulfilled KeyRequestStatus = "KEY_REQUEST_STATUS_FULFILLED"
	// KeyRequestStatusRejected は却下されたリクエストを表す。
	KeyRequestStatusRejected KeyRequestStatus = "KEY_REQUEST_STATUS_REJECTED"
)

// KeyType は要求された鍵の種類を表す。
type KeyType string

const (
	KeyTypeUnspecified    KeyType = "KEY_TYPE_UNSPECIFIED"
	KeyTypeECDSASecp256k1 KeyType = "KEY_TYPE_ECDSA_SECP256K1"
	KeyTypeEdDSAEd25519   KeyType = "KEY_TYPE_EDDSA_ED25519"
)

// KeyRequest は台帳から取得した鍵生成リクエストのスナップショット。
type KeyRequest struct {
	ID         uint64
	Creator    string
	SpaceID    uint64
	KeychainID uint64
	KeyType    KeyType
	Status     KeyRequestStatus
}

// IsPending はリクエストが未処理かどうかを返す。
func (r KeyRequest) IsPending() bool {
	return r.Status == KeyRequestStatusPending
}
