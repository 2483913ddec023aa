package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeCounter int

func (c fakeCounter) Connections() int { return int(c) }

func doHealth(t *testing.T, h *Handler, url string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func TestHealth_Simple(t *testing.T) {
	rec, resp := doHealth(t, NewHandler(), "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if resp.Status != "ok" {
		t.Errorf("status field = %q, want %q", resp.Status, "ok")
	}
	if resp.Components != nil {
		t.Errorf("simple health should omit components, got %v", resp.Components)
	}
}

func TestHealth_VerboseAllHealthy(t *testing.T) {
	h := NewHandler().
		WithDatabase(PingerFunc(func(ctx context.Context) error { return nil })).
		WithRedis(PingerFunc(func(ctx context.Context) error { return nil })).
		WithHub(fakeCounter(3))

	rec, resp := doHealth(t, h, "/health?verbose=true")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if resp.Status != "ok" {
		t.Errorf("status field = %q, want %q", resp.Status, "ok")
	}
	if resp.Components["database"] != "healthy" {
		t.Errorf("database = %q, want healthy", resp.Components["database"])
	}
	if resp.Components["redis"] != "healthy" {
		t.Errorf("redis = %q, want healthy", resp.Components["redis"])
	}
	if resp.Components["hub"] != "healthy (3 connections)" {
		t.Errorf("hub = %q", resp.Components["hub"])
	}
}

func TestHealth_VerboseDegraded(t *testing.T) {
	h := NewHandler().
		WithDatabase(PingerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	rec, resp := doHealth(t, h, "/health?verbose=true")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if resp.Status != "degraded" {
		t.Errorf("status field = %q, want %q", resp.Status, "degraded")
	}
	if !strings.HasPrefix(resp.Components["database"], "unhealthy") {
		t.Errorf("database = %q, want unhealthy prefix", resp.Components["database"])
	}
}

func TestHealth_VerboseSkipsUnconfiguredProbes(t *testing.T) {
	h := NewHandler().
		WithRedis(PingerFunc(func(ctx context.Context) error { return nil }))

	_, resp := doHealth(t, h, "/health?verbose=true")

	if _, ok := resp.Components["database"]; ok {
		t.Error("database probe should be absent when not configured")
	}
	if resp.Components["redis"] != "healthy" {
		t.Errorf("redis = %q, want healthy", resp.Components["redis"])
	}
}

func TestHandler_UnknownPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	NewHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
