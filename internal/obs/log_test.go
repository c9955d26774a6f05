package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogEventWritesStandardKeys(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	Error("cache_lookup_failed", map[string]any{
		"msg":   "must not win",
		"table": "invalidTokens",
		"err":   errors.New("connection refused"),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "error" || entry["msg"] != "cache_lookup_failed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["err"] != "connection refused" {
		t.Fatalf("error field not stringified: %v", entry["err"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("missing ts")
	}
}
