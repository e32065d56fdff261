package usecase

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"keychain-agent/internal/domain"
)

// mockKeyRepository はテスト用のモックリポジトリ。
type mockKeyRepository struct {
	keys          map[uint64]*domain.StoredKey
	findErr       error
	createErr     error
	createdKeys   []*domain.StoredKey
	onCreateError *domain.StoredKey // Create失敗時に別プロセスが保存した鍵を模擬する
}

func newMockKeyRepository() *mockKeyRepository {
	return &mockKeyRepository{keys: make(map[uint64]*domain.StoredKey)}
}

func (m *mockKeyRepository) Create(ctx context.Context, key *domain.StoredKey) error {
	if m.createErr != nil {
		if m.onCreateError != nil {
			m.keys[m.onCreateError.RequestID] = m.onCreateError
		}
		return m.createErr
	}
	key.ID = "key-id"
	key.CreatedAt = time.Now()
	m.keys[key.RequestID] = key
	m.createdKeys = append(m.createdKeys, key)
	return nil
}

func (m *mockKeyRepository) FindByRequestID(ctx context.Context, requestID uint64) (*domain.StoredKey, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.keys[requestID], nil
}

func (m *mockKeyRepository) FindAllByKeychainID(ctx context.Context, keychainID uint64) ([]*domain.StoredKey, error) {
	var result []*domain.StoredKey
	for _, k := range m.keys {
		if k.KeychainID == keychainID {
			result = append(result, k)
		}
	}
	return result, nil
}

// mockKMSClient はテスト用のモックKMSクライアント。
type mockKMSClient struct {
	encryptErr error
	decryptErr error
}

func (m *mockKMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	return append([]byte("encrypted:"), plaintext...), nil
}

func (m *mockKMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	return bytes.TrimPrefix(ciphertext, []byte("encrypted:")), nil
}

func TestKeyService_Generate_Secp256k1(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKMSClient{})

	req := domain.KeyRequest{ID: 10, KeychainID: 1, KeyType: domain.KeyTypeECDSASecp256k1}
	pub, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub) != 33 {
		t.Fatalf("want 33-byte compressed public key, got %d bytes", len(pub))
	}
	if len(repo.createdKeys) != 1 {
		t.Fatalf("want 1 created key, got %d", len(repo.createdKeys))
	}

	// 保存された秘密鍵から同じ公開鍵が導出できる
	priv, err := svc.GetPrivateKey(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPrivateKey failed: %v", err)
	}
	key, err := ethcrypto.ToECDSA(priv.Key)
	if err != nil {
		t.Fatalf("stored private key is not a secp256k1 key: %v", err)
	}
	if !bytes.Equal(ethcrypto.CompressPubkey(&key.PublicKey), pub) {
		t.Error("stored private key does not match returned public key")
	}
}

func TestKeyService_Generate_Ed25519(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKMSClient{})

	req := domain.KeyRequest{ID: 11, KeychainID: 1, KeyType: domain.KeyTypeEdDSAEd25519}
	pub, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		t.Fatalf("want %d-byte public key, got %d", ed25519.PublicKeySize, len(pub))
	}

	priv, err := svc.GetPrivateKey(context.Background(), 11)
	if err != nil {
		t.Fatalf("GetPrivateKey failed: %v", err)
	}
	derived := ed25519.NewKeyFromSeed(priv.Key).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) {
		t.Error("stored seed does not match returned public key")
	}
}

func TestKeyService_Generate_Unspecified(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKMSClient{})

	if _, err := svc.Generate(context.Background(), domain.KeyRequest{ID: 12, KeyType: domain.KeyTypeUnspecified}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.keys[12].KeyType != domain.KeyTypeECDSASecp256k1 {
		t.Errorf("want stored type secp256k1, got %s", repo.keys[12].KeyType)
	}
}

func TestKeyService_Generate_UnsupportedKeyType(t *testing.T) {
	svc := NewKeyService(newMockKeyRepository(), &mockKMSClient{})

	_, err := svc.Generate(context.Background(), domain.KeyRequest{ID: 13, KeyType: "KEY_TYPE_RSA"})
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, domain.ErrUnsupportedKeyType) {
		t.Errorf("want ErrGeneration wrapping ErrUnsupportedKeyType, got %v", err)
	}
}

func TestKeyService_Generate_Idempotent(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKMSClient{})
	req := domain.KeyRequest{ID: 10, KeychainID: 1}

	first, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("second call returned a different public key")
	}
	if len(repo.createdKeys) != 1 {
		t.Errorf("want 1 created key, got %d", len(repo.createdKeys))
	}
}

func TestKeyService_Generate_ConcurrentWriter(t *testing.T) {
	winner := &domain.StoredKey{RequestID: 10, PublicKey: []byte("winner")}
	repo := newMockKeyRepository()
	repo.createErr = errors.New("UNIQUE constraint failed")
	repo.onCreateError = winner
	svc := NewKeyService(repo, &mockKMSClient{})

	pub, err := svc.Generate(context.Background(), domain.KeyRequest{ID: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(pub, winner.PublicKey) {
		t.Errorf("want the already stored key, got %x", pub)
	}
}

func TestKeyService_Generate_Errors(t *testing.T) {
	tests := []struct {
		name string
		repo *mockKeyRepository
		kms  *mockKMSClient
	}{
		{"find error", &mockKeyRepository{keys: map[uint64]*domain.StoredKey{}, findErr: errors.New("db down")}, &mockKMSClient{}},
		{"encrypt error", newMockKeyRepository(), &mockKMSClient{encryptErr: errors.New("kms down")}},
		{"create error", &mockKeyRepository{keys: map[uint64]*domain.StoredKey{}, createErr: errors.New("db down")}, &mockKMSClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewKeyService(tt.repo, tt.kms)
			_, err := svc.Generate(context.Background(), domain.KeyRequest{ID: 10})
			if !errors.Is(err, domain.ErrGeneration) {
				t.Errorf("want ErrGeneration, got %v", err)
			}
		})
	}
}

func TestKeyService_GetKey(t *testing.T) {
	repo := newMockKeyRepository()
	repo.keys[10] = &domain.StoredKey{RequestID: 10, KeychainID: 1, KeyType: domain.KeyTypeECDSASecp256k1, PublicKey: []byte("pub")}
	svc := NewKeyService(repo, &mockKMSClient{})

	meta, err := svc.GetKey(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.RequestID != 10 || !bytes.Equal(meta.PublicKey, []byte("pub")) {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	_, err = svc.GetKey(context.Background(), 99)
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
}

func TestKeyService_GetPrivateKey_DecryptError(t *testing.T) {
	repo := newMockKeyRepository()
	repo.keys[10] = &domain.StoredKey{RequestID: 10, EncryptedPrivateKey: []byte("x")}
	svc := NewKeyService(repo, &mockKMSClient{decryptErr: errors.New("permission denied")})

	if _, err := svc.GetPrivateKey(context.Background(), 10); err == nil {
		t.Error("expected decrypt error")
	}
	if _, err := svc.GetPrivateKey(context.Background(), 11); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
}

func TestKeyService_ListKeys(t *testing.T) {
	repo := newMockKeyRepository()
	repo.keys[10] = &domain.StoredKey{RequestID: 10, KeychainID: 1}
	repo.keys[11] = &domain.StoredKey{RequestID: 11, KeychainID: 2}
	svc := NewKeyService(repo, &mockKMSClient{})

	keys, err := svc.ListKeys(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0].RequestID != 10 {
		t.Errorf("unexpected keys: %+v", keys)
	}
}
