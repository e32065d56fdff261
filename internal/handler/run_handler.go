package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"keychain-agent/internal/domain"
	"keychain-agent/internal/usecase"
	"keychain-agent/pkg/httputil"
)

// RunTrigger は1回分の実行を開始する。
type RunTrigger interface {
	Trigger(ctx context.Context) (*domain.RunOutcome, error)
}

// RunHandler は手動実行APIを提供する。
type RunHandler struct {
	trigger RunTrigger
}

// NewRunHandler は新しいRunHandlerを生成する。
func NewRunHandler(trigger RunTrigger) *RunHandler {
	return &RunHandler{trigger: trigger}
}

// RunResponse は実行結果のレスポンス形式。
type RunResponse struct {
	Outcome   string          `json:"outcome"`
	TxHash    string          `json:"tx_hash,omitempty"`
	Fulfilled []string        `json:"fulfilled"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func toRunResponse(o *domain.RunOutcome) RunResponse {
	resp := RunResponse{
		Outcome:   string(o.Kind),
		TxHash:    o.TxHash,
		Fulfilled: make([]string, len(o.Fulfilled)),
	}
	for i, id := range o.Fulfilled {
		resp.Fulfilled[i] = strconv.FormatUint(id, 10)
	}
	if o.Result != nil && len(o.Result.Raw) > 0 {
		resp.Result = o.Result.Raw
	}
	return resp
}

// CreateRun は未処理リクエストの処理を1回実行する。
// 台帳が拒否した場合は 502 と台帳のペイロードを返す。
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.trigger.Trigger(r.Context())
	if err != nil {
		var rejected *domain.RejectedError
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			httputil.Error(w, http.StatusConflict, "RUN_IN_PROGRESS", "a fulfillment run is already in progress")
		case errors.As(err, &rejected) && outcome != nil:
			httputil.JSON(w, http.StatusBadGateway, toRunResponse(outcome))
		case usecase.IsRetryable(err):
			slog.ErrorContext(r.Context(), "fulfillment run failed",
				"operation", "create_run",
				"error", err,
			)
			httputil.Error(w, http.StatusBadGateway, "LEDGER_ERROR", err.Error())
		default:
			slog.ErrorContext(r.Context(), "fulfillment run failed",
				"operation", "create_run",
				"error", err,
			)
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, toRunResponse(outcome))
}

// Healthz はプロセスの生存確認に応答する。
func Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
