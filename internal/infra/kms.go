package infra

import (
	"context"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
)

// KMSClient は生成した秘密鍵を鍵ストアに保存する前に暗号化する。
// 暗号鍵はキーチェーンごとに1つ（KMS_KEY_NAME）で、リクエスト単位の鍵は持たない。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient はKMS_KEY_NAMEの暗号鍵を使うKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME is required for the kms key generator")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return &KMSClient{client: client, keyName: keyName}, nil
}

// Encrypt は秘密鍵（secp256k1のスカラーまたはed25519のシード）を暗号化する。
func (c *KMSClient) Encrypt(ctx context.Context, privateKey []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: privateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encrypting private key with %s: %w", c.keyName, err)
	}
	return resp.Ciphertext, nil
}

// Decrypt は鍵ストアに保存された暗号文を秘密鍵に戻す。keychainctl keys export から使う。
func (c *KMSClient) Decrypt(ctx context.Context, stored []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: stored,
	})
	if err != nil {
		return nil, fmt.Errorf("decrypting private key with %s: %w", c.keyName, err)
	}
	return resp.Plaintext, nil
}

// Close はKMSとの接続を閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}
