package apiserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/config"
)

type healthResponse struct {
	Status string `json:"status"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealthEndpoint(t *testing.T) {
	cfg := &config.Config{}
	server := NewServer(nil, nil, nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()

	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var response healthResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Fatalf("expected status ok, got %q", response.Status)
	}
}

func TestAPIAuthRequired(t *testing.T) {
	cfg := &config.Config{}
	server := NewServer(nil, nil, nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	recorder := httptest.NewRecorder()

	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}

	var response errorEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Error.Code != "AUTHENTICATION_REQUIRED" {
		t.Fatalf("expected AUTHENTICATION_REQUIRED, got %q", response.Error.Code)
	}
	if response.Error.Message != "missing authorization" {
		t.Fatalf("expected missing authorization message, got %q", response.Error.Message)
	}
}
