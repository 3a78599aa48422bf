package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/models"
)

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
}

func TestHandleDirectDeposit_Validation(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, nil, nil, logger)

	tests := []struct {
		name    string
		request DirectDepositRequest
	}{
		{
			name: "missing sender",
			request: DirectDepositRequest{
				Amount:     "1000000",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "invalid sender",
			request: DirectDepositRequest{
				Sender:     "not-an-address",
				Amount:     "1000000",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "missing amount",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "non-numeric amount",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "one million",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "zero amount",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "0",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "negative amount",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "-5",
				StarkKey:   "0x59a",
				PositionID: "7",
			},
		},
		{
			name: "missing stark key",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "1000000",
				PositionID: "7",
			},
		},
		{
			name: "zero stark key",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "1000000",
				StarkKey:   "0x0",
				PositionID: "7",
			},
		},
		{
			name: "missing position id",
			request: DirectDepositRequest{
				Sender:   "0x0000000000000000000000000000000000000bbb",
				Amount:   "1000000",
				StarkKey: "0x59a",
			},
		},
		{
			name: "negative position id",
			request: DirectDepositRequest{
				Sender:     "0x0000000000000000000000000000000000000bbb",
				Amount:     "1000000",
				StarkKey:   "0x59a",
				PositionID: "-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits/direct", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleDirectDeposit(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestHandleConvertDeposit_Validation(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, nil, nil, logger)

	tests := []struct {
		name    string
		request ConvertDepositRequest
	}{
		{
			name: "missing source token",
			request: ConvertDepositRequest{
				Sender:       "0x0000000000000000000000000000000000000bbb",
				SourceAmount: "500",
				StarkKey:     "0x59a",
				PositionID:   "7",
			},
		},
		{
			name: "invalid source token",
			request: ConvertDepositRequest{
				Sender:       "0x0000000000000000000000000000000000000bbb",
				SourceToken:  "weth",
				SourceAmount: "500",
				StarkKey:     "0x59a",
				PositionID:   "7",
			},
		},
		{
			name: "invalid minimum",
			request: ConvertDepositRequest{
				Sender:              "0x0000000000000000000000000000000000000bbb",
				SourceToken:         "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				SourceAmount:        "500",
				MinStablecoinAmount: "lots",
				StarkKey:            "0x59a",
				PositionID:          "7",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits/convert", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleConvertDeposit(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestHandleDirectDeposit_InvalidJSON(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, nil, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits/direct", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleDirectDeposit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandleGetDepositsByStatus_InvalidStatus(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(nil, nil, nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deposits/status/PENDING", nil)
	req = mux.SetURLVars(req, map[string]string{"status": "PENDING"})
	w := httptest.NewRecorder()

	handler.HandleGetDepositsByStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error == "" {
		t.Error("expected error message in response")
	}
}

func TestParseDepositStatus(t *testing.T) {
	status, err := parseDepositStatus("succeeded")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.DepositStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", status)
	}

	status, err = parseDepositStatus("FAILED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.DepositStatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}

	for _, value := range []string{"", "PENDING", "done"} {
		if _, err := parseDepositStatus(value); err == nil {
			t.Errorf("expected %q to be rejected", value)
		}
	}
}

func TestParseTarget(t *testing.T) {
	starkKey, positionID, err := parseTarget("0x59a", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if starkKey.Int64() != 0x59a {
		t.Errorf("stark key = %s, want 0x59a", starkKey)
	}
	if positionID.Int64() != 7 {
		t.Errorf("position id = %s, want 7", positionID)
	}

	// Bare hex without prefix is accepted too.
	if _, _, err := parseTarget("59a", "7"); err != nil {
		t.Errorf("unexpected error for unprefixed key: %v", err)
	}

	if _, _, err := parseTarget("xyz", "7"); err == nil {
		t.Error("expected invalid stark key to be rejected")
	}
	if _, _, err := parseTarget("0x59a", "7.5"); err == nil {
		t.Error("expected fractional position id to be rejected")
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()

	data := map[string]string{"key": "value"}
	respondJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got '%s'", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("expected key 'value', got '%s'", result["key"])
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, http.StatusBadRequest, "Bad request", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if errResp.Error != "Bad request" {
		t.Errorf("expected error 'Bad request', got '%s'", errResp.Error)
	}
}
