package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(&config.Config{}, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version:  "test-version",
		Env:      "test",
		JobStore: config.JobStoreConfig{Backend: config.JobStoreMemory},
		Features: config.FeatureConfig{DiffEngineV1: "true", DiffProgressiveAPIV1: "off"},
	}
	handler := NewHealthHandler(cfg, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Version != "test-version" {
		t.Errorf("expected version 'test-version', got %q", response.Version)
	}
	if response.Service != "bomdiff-engine" {
		t.Errorf("expected service 'bomdiff-engine', got %q", response.Service)
	}
	if response.JobStore != config.JobStoreMemory {
		t.Errorf("expected job store 'memory', got %q", response.JobStore)
	}
	if !response.Features["DIFF_ENGINE_V1"] || response.Features["DIFF_PROGRESSIVE_API_V1"] {
		t.Errorf("unexpected feature map: %v", response.Features)
	}
}
