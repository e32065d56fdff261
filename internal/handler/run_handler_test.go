package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keychain-agent/internal/domain"
)

// mockRunTrigger はテスト用のモックRunTrigger。
type mockRunTrigger struct {
	outcome *domain.RunOutcome
	err     error
	calls   int
}

func (m *mockRunTrigger) Trigger(ctx context.Context) (*domain.RunOutcome, error) {
	m.calls++
	return m.outcome, m.err
}

func TestCreateRun_Success(t *testing.T) {
	trigger := &mockRunTrigger{outcome: &domain.RunOutcome{
		Kind:      domain.RunOutcomeSuccess,
		TxHash:    "ABCDEF",
		Fulfilled: []uint64{10, 11, 12},
		Result:    &domain.TxResult{TxHash: "ABCDEF", Raw: json.RawMessage(`{"code":0,"txhash":"ABCDEF"}`)},
	}}
	h := NewRunHandler(trigger)

	rec := httptest.NewRecorder()
	h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var resp RunResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Outcome != "success" || resp.TxHash != "ABCDEF" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if strings.Join(resp.Fulfilled, ",") != "10,11,12" {
		t.Errorf("unexpected fulfilled ids: %v", resp.Fulfilled)
	}
}

func TestCreateRun_NoWork(t *testing.T) {
	h := NewRunHandler(&mockRunTrigger{outcome: &domain.RunOutcome{Kind: domain.RunOutcomeNoWork}})

	rec := httptest.NewRecorder()
	h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["outcome"] != "no_work" {
		t.Errorf("want no_work, got %v", resp["outcome"])
	}
	if _, ok := resp["result"]; ok {
		t.Error("no result expected for no_work")
	}
}

func TestCreateRun_Rejected(t *testing.T) {
	res := &domain.TxResult{Code: 5, TxHash: "FFFF", RawLog: "insufficient fees", Raw: json.RawMessage(`{"code":5,"raw_log":"insufficient fees"}`)}
	h := NewRunHandler(&mockRunTrigger{
		outcome: &domain.RunOutcome{Kind: domain.RunOutcomeFailed, TxHash: "FFFF", Result: res},
		err:     &domain.RejectedError{Result: res},
	})

	rec := httptest.NewRecorder()
	h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("want status 502, got %d", rec.Code)
	}
	var resp struct {
		Outcome string `json:"outcome"`
		Result  struct {
			Code   int    `json:"code"`
			RawLog string `json:"raw_log"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Outcome != "failed" || resp.Result.Code != 5 || resp.Result.RawLog != "insufficient fees" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"in progress", domain.ErrRunInProgress, http.StatusConflict, "RUN_IN_PROGRESS"},
		{"ledger read", errors.Join(domain.ErrLedgerRead, errors.New("timeout")), http.StatusBadGateway, "LEDGER_ERROR"},
		{"invalid request", domain.ErrInvalidKeyRequest, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRunHandler(&mockRunTrigger{err: tt.err})

			rec := httptest.NewRecorder()
			h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("want status %d, got %d", tt.wantCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("want body containing %s, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}
