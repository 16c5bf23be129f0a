package infra

import (
	"errors"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		marker   string
		body     string
		wantFail bool
	}{
		{
			name:   "valid",
			query:  "\n  --sql 0b6f3c1e-5f8d-4a4e-9b44-5f0e4c8d2a11\nSELECT 1",
			marker: "0b6f3c1e-5f8d-4a4e-9b44-5f0e4c8d2a11",
			body:   "SELECT 1",
		},
		{name: "missing", query: "SELECT 1", wantFail: true},
		{name: "uppercase uuid", query: "--sql 0B6F3C1E-5F8D-4A4E-9B44-5F0E4C8D2A11\nSELECT 1", wantFail: true},
		{name: "empty", query: "   ", wantFail: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := extractMarker(tc.query)
			if tc.wantFail {
				if !errors.Is(err, ErrMissingMarker) {
					t.Fatalf("err = %v, want ErrMissingMarker", err)
				}
				return
			}
			if err != nil || marker != tc.marker || body != tc.body {
				t.Fatalf("extractMarker = %q, %q, %v", marker, body, err)
			}
		})
	}
}
