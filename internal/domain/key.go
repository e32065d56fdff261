package domain

import "time"

// StoredKey は生成済み鍵の保管エンティティ。秘密鍵はKMSで暗号化されている。
type StoredKey struct {
	ID                  string
	RequestID           uint64
	KeychainID          uint64
	KeyType             KeyType
	PublicKey           []byte
	EncryptedPrivateKey []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// KeyMetadata は鍵のメタデータを表す（秘密鍵を含まない）。
type KeyMetadata struct {
	RequestID  uint64
	KeychainID uint64
	KeyType    KeyType
	PublicKey  []byte
	CreatedAt  time.Time
}

// PrivateKey は復号済みの秘密鍵を表す。
type PrivateKey struct {
	RequestID uint64
	KeyType   KeyType
	Key       []byte // 平文の秘密鍵
}
