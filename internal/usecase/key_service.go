// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"keychain-agent/internal/domain"
)

// KeyRepository は生成済み鍵のデータアクセスのインターフェース。
type KeyRepository interface {
	Create(ctx context.Context, key *domain.StoredKey) error
	FindByRequestID(ctx context.Context, requestID uint64) (*domain.StoredKey, error)
	FindAllByKeychainID(ctx context.Context, keychainID uint64) ([]*domain.StoredKey, error)
}

// KMSClient は暗号化/復号のインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyService はリクエストIDごとに鍵を生成・保管する。
// 秘密鍵はKMSで暗号化してから保存する。
type KeyService struct {
	repo      KeyRepository
	kmsClient KMSClient
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyRepository, kmsClient KMSClient) *KeyService {
	return &KeyService{
		repo:      repo,
		kmsClient: kmsClient,
	}
}

// generateKeyPair は鍵種別に応じた鍵ペアを生成する。
// KEY_TYPE_UNSPECIFIED はsecp256k1として扱う。
func generateKeyPair(keyType domain.KeyType) (privateKey, publicKey []byte, err error) {
	switch keyType {
	case domain.KeyTypeECDSASecp256k1, domain.KeyTypeUnspecified, "":
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, nil, fmt.Errorf("generating secp256k1 key: %w", err)
		}
		return ethcrypto.FromECDSA(key), ethcrypto.CompressPubkey(&key.PublicKey), nil
	case domain.KeyTypeEdDSAEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generating ed25519 key: %w", err)
		}
		return priv.Seed(), pub, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKeyType, keyType)
	}
}

// Generate はリクエストに対応する鍵を生成して保存し、公開鍵を返す。
// 既に保存済みの場合は新しく生成せず、保存済みの公開鍵を返す。
func (s *KeyService) Generate(ctx context.Context, req domain.KeyRequest) ([]byte, error) {
	// 既存チェック
	existing, err := s.repo.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: finding existing key: %w", domain.ErrGeneration, err)
	}
	if existing != nil {
		slog.DebugContext(ctx, "reusing stored key",
			"operation", "generate",
			"request_id", req.ID,
		)
		return existing.PublicKey, nil
	}

	privateKey, publicKey, err := generateKeyPair(req.KeyType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	// KMSで暗号化
	encrypted, err := s.kmsClient.Encrypt(ctx, privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypting key: %w", domain.ErrGeneration, err)
	}

	key := &domain.StoredKey{
		RequestID:           req.ID,
		KeychainID:          req.KeychainID,
		KeyType:             normalizeKeyType(req.KeyType),
		PublicKey:           publicKey,
		EncryptedPrivateKey: encrypted,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		// 別プロセスが同じリクエストの鍵を先に保存した場合はそちらを採用する
		stored, findErr := s.repo.FindByRequestID(ctx, req.ID)
		if findErr == nil && stored != nil {
			return stored.PublicKey, nil
		}
		return nil, fmt.Errorf("%w: storing key: %w", domain.ErrGeneration, err)
	}
	return publicKey, nil
}

func normalizeKeyType(keyType domain.KeyType) domain.KeyType {
	if keyType == "" || keyType == domain.KeyTypeUnspecified {
		return domain.KeyTypeECDSASecp256k1
	}
	return keyType
}

// GetKey は指定されたリクエストIDの鍵メタデータを取得する。
func (s *KeyService) GetKey(ctx context.Context, requestID uint64) (*domain.KeyMetadata, error) {
	key, err := s.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	return toMetadata(key), nil
}

// GetPrivateKey は指定されたリクエストIDの秘密鍵を復号して返す。
func (s *KeyService) GetPrivateKey(ctx context.Context, requestID uint64) (*domain.PrivateKey, error) {
	key, err := s.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}

	// KMSで復号
	plain, err := s.kmsClient.Decrypt(ctx, key.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	return &domain.PrivateKey{
		RequestID: key.RequestID,
		KeyType:   key.KeyType,
		Key:       plain,
	}, nil
}

// ListKeys は指定されたキーチェーンの鍵メタデータを取得する。
func (s *KeyService) ListKeys(ctx context.Context, keychainID uint64) ([]*domain.KeyMetadata, error) {
	keys, err := s.repo.FindAllByKeychainID(ctx, keychainID)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}

	metadata := make([]*domain.KeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = toMetadata(k)
	}
	return metadata, nil
}

func toMetadata(k *domain.StoredKey) *domain.KeyMetadata {
	return &domain.KeyMetadata{
		RequestID:  k.RequestID,
		KeychainID: k.KeychainID,
		KeyType:    k.KeyType,
		PublicKey:  k.PublicKey,
		CreatedAt:  k.CreatedAt,
	}
}
