package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFixed(t *testing.T) {
	ctx := context.Background()
	if err := Fixed(true, "ignored").Check(ctx); err != nil {
		t.Fatalf("Fixed(true) = %v", err)
	}
	if err := Fixed(false, "").Check(ctx); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v, want unhealthy", err)
	}
	if err := Fixed(false, "disk gone").Check(ctx); err == nil || err.Error() != "disk gone" {
		t.Fatalf("Fixed(false) = %v", err)
	}
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	first := errors.New("first")
	calls := 0
	counting := CheckFunc(func(context.Context) error { calls++; return nil })

	if err := All(counting, nil, Fixed(true, "")).Check(ctx); err != nil {
		t.Fatalf("All passing = %v", err)
	}
	err := All(CheckFunc(func(context.Context) error { return first }), counting).Check(ctx)
	if !errors.Is(err, first) {
		t.Fatalf("All = %v, want first failure", err)
	}
	if calls != 1 {
		t.Fatalf("probes after a failure should not run, calls = %d", calls)
	}
	if err := All().Check(ctx); err != nil {
		t.Fatalf("empty All = %v", err)
	}
}

func TestShutdownGate(t *testing.T) {
	ctx := context.Background()
	var g ShutdownGate
	p := g.Probe()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("fresh gate = %v", err)
	}
	g.Set("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("set gate = %v, want draining", err)
	}
	g.Set("shutting down")
	if err := p.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("set gate = %v", err)
	}
	g.Clear()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("cleared gate = %v", err)
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok"},
		{"healthz nil probe", HealthzHandler(nil), http.StatusOK, "ok"},
		{"healthz failing", HealthzHandler(Fixed(false, "sites unavailable")), http.StatusServiceUnavailable, "sites unavailable"},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), http.StatusOK, "ready"},
		{"readyz draining", ReadyzHandler(Fixed(false, "draining")), http.StatusServiceUnavailable, "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("probe responses must not be cached")
			}
		})
	}
}
