package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("model", "31_256_12").Msg("loaded")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "loaded" || line["service"] != "stylegan-api" || line["model"] != "31_256_12" {
		t.Fatalf("line = %v", line)
	}
}
