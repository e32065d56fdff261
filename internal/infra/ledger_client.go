package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"keychain-agent/internal/domain"
)

const (
	keyRequestsPath      = "/warden/warden/v1beta2/key-requests"
	signAndBroadcastPath = "/v1/txs/sign-and-broadcast"
	accountPath          = "/v1/account"

	msgUpdateKeyRequestType = "/warden.warden.v1beta2.MsgUpdateKeyRequest"

	// maxErrorBody はエラー時にメッセージへ含めるレスポンスの最大長。
	maxErrorBody = 512
)

// LedgerClient は台帳のRESTエンドポイントと署名ゲートウェイを呼び出すクライアント。
// 秘密鍵は署名ゲートウェイ側が保持し、このクライアントは扱わない。
type LedgerClient struct {
	queryURL  string
	signerURL string
	client    *http.Client
}

// NewLedgerClient は新しいLedgerClientを生成する。
func NewLedgerClient(queryURL, signerURL string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		queryURL:  strings.TrimRight(queryURL, "/"),
		signerURL: strings.TrimRight(signerURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type keyRequestJSON struct {
	ID         uint64 `json:"id,string"`
	Creator    string `json:"creator"`
	SpaceID    uint64 `json:"space_id,string"`
	KeychainID uint64 `json:"keychain_id,string"`
	KeyType    string `json:"key_type"`
	Status     string `json:"status"`
}

type keyRequestsResponse struct {
	KeyRequests []keyRequestJSON `json:"key_requests"`
}

// ListPendingKeyRequests は指定キーチェーン宛の未処理リクエストを台帳の返す順で最大limit件取得する。
func (c *LedgerClient) ListPendingKeyRequests(ctx context.Context, keychainID uint64, limit int) ([]domain.KeyRequest, error) {
	q := url.Values{}
	q.Set("status", string(domain.KeyRequestStatusPending))
	q.Set("keychain_id", strconv.FormatUint(keychainID, 10))
	q.Set("space_id", "0")
	q.Set("pagination.limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, c.queryURL+keyRequestsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp keyRequestsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding key requests: %w", err)
	}

	requests := make([]domain.KeyRequest, 0, len(resp.KeyRequests))
	for _, r := range resp.KeyRequests {
		requests = append(requests, domain.KeyRequest{
			ID:         r.ID,
			Creator:    r.Creator,
			SpaceID:    r.SpaceID,
			KeychainID: r.KeychainID,
			KeyType:    domain.KeyType(r.KeyType),
			Status:     domain.KeyRequestStatus(r.Status),
		})
	}
	// ページ上限を超えて返された分は処理しない
	if len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}

type keyJSON struct {
	PublicKey []byte `json:"public_key"`
}

type msgUpdateKeyRequestJSON struct {
	Type      string  `json:"@type"`
	Creator   string  `json:"creator"`
	RequestID uint64  `json:"request_id,string"`
	Status    string  `json:"status"`
	Key       keyJSON `json:"key"`
}

type feeJSON struct {
	Amount []domain.Coin `json:"amount"`
	Gas    uint64        `json:"gas,string"`
}

type signAndBroadcastRequest struct {
	Signer   string                    `json:"signer"`
	Messages []msgUpdateKeyRequestJSON `json:"messages"`
	Fee      feeJSON                   `json:"fee"`
}

type txResponseJSON struct {
	Code      uint32 `json:"code"`
	TxHash    string `json:"txhash"`
	Height    int64  `json:"height,string"`
	RawLog    string `json:"raw_log"`
	GasWanted int64  `json:"gas_wanted,string"`
	GasUsed   int64  `json:"gas_used,string"`
}

// SignAndBroadcast は操作群を1つのトランザクションとして署名ゲートウェイに送信し、
// コミット結果を返す。台帳が拒否した場合もエラーではなく非ゼロのCodeを持つ結果を返す。
func (c *LedgerClient) SignAndBroadcast(ctx context.Context, signer string, ops []domain.UpdateKeyRequestOp, fee domain.FeeBudget) (*domain.TxResult, error) {
	msgs := make([]msgUpdateKeyRequestJSON, len(ops))
	for i, op := range ops {
		msgs[i] = msgUpdateKeyRequestJSON{
			Type:      msgUpdateKeyRequestType,
			Creator:   op.Creator,
			RequestID: op.RequestID,
			Status:    string(op.Status),
			Key:       keyJSON{PublicKey: op.PublicKey},
		}
	}
	payload, err := json.Marshal(signAndBroadcastRequest{
		Signer:   signer,
		Messages: msgs,
		Fee:      feeJSON{Amount: fee.Amount, Gas: fee.GasLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding transaction: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.signerURL+signAndBroadcastPath, payload)
	if err != nil {
		return nil, err
	}

	var resp txResponseJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding broadcast result: %w", err)
	}
	return &domain.TxResult{
		Code:      resp.Code,
		TxHash:    resp.TxHash,
		Height:    resp.Height,
		RawLog:    resp.RawLog,
		GasWanted: resp.GasWanted,
		GasUsed:   resp.GasUsed,
		Raw:       json.RawMessage(body),
	}, nil
}

// Address は署名ゲートウェイが保持するアカウントのアドレスを返す。
func (c *LedgerClient) Address(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.signerURL+accountPath, nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding account: %w", err)
	}
	if resp.Address == "" {
		return "", fmt.Errorf("signer returned an empty address")
	}
	return resp.Address, nil
}

func (c *LedgerClient) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

// StaticSigner は設定で与えられたアドレスをそのまま返すSigner。
type StaticSigner struct {
	address string
}

// NewStaticSigner は新しいStaticSignerを生成する。
func NewStaticSigner(address string) *StaticSigner {
	return &StaticSigner{address: address}
}

// Address は設定されたアドレスを返す。
func (s *StaticSigner) Address(ctx context.Context) (string, error) {
	if s.address == "" {
		return "", fmt.Errorf("signer address is not configured")
	}
	return s.address, nil
}
