// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"keychain-agent/internal/domain"
	"keychain-agent/internal/middleware"
	"keychain-agent/internal/usecase"
	"keychain-agent/pkg/httputil"
)

// KeyHandler は生成済み鍵の参照APIを提供する。秘密鍵は返さない。
type KeyHandler struct {
	service    *usecase.KeyService
	keychainID uint64
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(service *usecase.KeyService, keychainID uint64) *KeyHandler {
	return &KeyHandler{service: service, keychainID: keychainID}
}

func parseRequestID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid request id")
	}
	return id, nil
}

// KeyResponse は鍵メタデータのレスポンス形式。
type KeyResponse struct {
	RequestID  uint64 `json:"request_id,string"`
	KeychainID uint64 `json:"keychain_id,string"`
	KeyType    string `json:"key_type"`
	PublicKey  string `json:"public_key"`
	CreatedAt  string `json:"created_at"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyResponse `json:"keys"`
}

func toKeyResponse(k *domain.KeyMetadata) KeyResponse {
	return KeyResponse{
		RequestID:  k.RequestID,
		KeychainID: k.KeychainID,
		KeyType:    string(k.KeyType),
		PublicKey:  base64.StdEncoding.EncodeToString(k.PublicKey),
		CreatedAt:  k.CreatedAt.Format(time.RFC3339),
	}
}

// GetKey はリクエストIDに対応する鍵を取得する。
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	requestID, err := parseRequestID(chi.URLParam(r, "request_id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST_ID", "invalid request ID")
		return
	}

	key, err := h.service.GetKey(r.Context(), requestID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_KEY", h.keychainID, requestID, "FAILED")
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found for this request")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get key",
			"operation", "get_key",
			"request_id", requestID,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_KEY", h.keychainID, requestID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toKeyResponse(key))
}

// ListKeys はこのキーチェーンで生成した鍵の一覧を取得する。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context(), h.keychainID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_KEYS", h.keychainID, 0, "FAILED")
		slog.ErrorContext(r.Context(), "failed to list keys",
			"operation", "list_keys",
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_KEYS", h.keychainID, 0, "SUCCESS")
	response := KeyListResponse{
		Keys: make([]KeyResponse, len(keys)),
	}
	for i, k := range keys {
		response.Keys[i] = toKeyResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}
