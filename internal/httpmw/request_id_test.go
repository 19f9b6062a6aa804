package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"valid", "abc-123_XYZ.7", true},
		{"uuid", "0b6c9a0e-7c1d-4a53-9b51-0a4f0f1cd5a1", true},
		{"space", "abc 123", false},
		{"newline", "abc\n123", false},
		{"quote", `abc"123`, false},
		{"non ascii", "abcé", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header[RequestIDHeader] = []string{tt.incoming}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("header %q != context %q", rec.Header().Get(RequestIDHeader), seen)
			}
			if tt.keep {
				if seen != tt.incoming {
					t.Fatalf("id = %q, want %q", seen, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("generated id %q is not a uuid: %v", seen, err)
			}
		})
	}
}

func TestRequestID_CustomHeader(t *testing.T) {
	h := RequestID("X-Correlation-Id")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Correlation-Id") != "corr-1" {
		t.Fatalf("header = %q", rec.Header().Get("X-Correlation-Id"))
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("got %q", got)
	}
	if ctx := WithRequestID(context.Background(), ""); RequestIDFromContext(ctx) != "" {
		t.Fatal("empty id stored")
	}
}
