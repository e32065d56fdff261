// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"keychain-agent/internal/domain"
)

// KeyModel はgorm用のモデル定義。
type KeyModel struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	RequestID           uint64    `gorm:"not null;uniqueIndex:uk_request_id"`
	KeychainID          uint64    `gorm:"not null;index:idx_keychain_id"`
	KeyType             string    `gorm:"type:varchar(32);not null"`
	PublicKey           []byte    `gorm:"not null"`
	EncryptedPrivateKey []byte    `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (KeyModel) TableName() string {
	return "keychain_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (k *KeyModel) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (k *KeyModel) toDomain() *domain.StoredKey {
	return &domain.StoredKey{
		ID:                  k.ID,
		RequestID:           k.RequestID,
		KeychainID:          k.KeychainID,
		KeyType:             domain.KeyType(k.KeyType),
		PublicKey:           k.PublicKey,
		EncryptedPrivateKey: k.EncryptedPrivateKey,
		CreatedAt:           k.CreatedAt,
		UpdatedAt:           k.UpdatedAt,
	}
}

// KeyRepository は生成済み鍵の保存と取得を提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create は生成した鍵を保存する。同じリクエストIDの鍵が既にある場合は一意制約違反になる。
func (r *KeyRepository) Create(ctx context.Context, key *domain.StoredKey) error {
	model := &KeyModel{
		ID:                  key.ID,
		RequestID:           key.RequestID,
		KeychainID:          key.KeychainID,
		KeyType:             string(key.KeyType),
		PublicKey:           key.PublicKey,
		EncryptedPrivateKey: key.EncryptedPrivateKey,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"request_id", key.RequestID,
			"keychain_id", key.KeychainID,
			"error", err,
		)
		return err
	}

	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByRequestID は指定されたリクエストIDの鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByRequestID(ctx context.Context, requestID uint64) (*domain.StoredKey, error) {
	var model KeyModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_request_id",
			"request_id", requestID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByKeychainID は指定されたキーチェーンの鍵をリクエストID順に取得する。
func (r *KeyRepository) FindAllByKeychainID(ctx context.Context, keychainID uint64) ([]*domain.StoredKey, error) {
	var models []KeyModel
	err := r.db.WithContext(ctx).
		Where("keychain_id = ?", keychainID).
		Order("request_id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find keys by keychain_id",
			"operation", "find_all_by_keychain_id",
			"keychain_id", keychainID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.StoredKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}
