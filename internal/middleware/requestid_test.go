package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "propagated", incoming: "abc-123", keep: true},
		{name: "generated", incoming: ""},
		{name: "oversized replaced", incoming: strings.Repeat("x", 100)},
		{name: "proxy style id kept", incoming: "edge-7:req_19.a", keep: true},
		{name: "control characters replaced", incoming: "abc\nlevel=error"},
		{name: "spaces replaced", incoming: "two words"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Request-ID", tc.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if seen == "" || rec.Header().Get("X-Request-ID") != seen {
				t.Fatalf("context id %q, header %q", seen, rec.Header().Get("X-Request-ID"))
			}
			if tc.keep != (seen == tc.incoming) {
				t.Fatalf("id = %q, incoming %q", seen, tc.incoming)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	h := CORS([]string{"https://app.example.com"})(next)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin = %d %v", rec.Code, rec.Header())
	}

	wild := CORS([]string{"*"})(next)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example.com")
	rec = httptest.NewRecorder()
	wild.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://any.example.com" {
		t.Fatalf("wildcard header = %v", rec.Header())
	}
}
