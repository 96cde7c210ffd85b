package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRedactsSecrets(t *testing.T) {
	log, logs := observed()
	log.Info("call",
		"api_key", "plain",
		"Authorization", "Bearer abc",
		"note", "sk-acme-0123456789abcdef",
		"provider", "graph-extractor",
		"headers", map[string]interface{}{"x-api-key": "k", "accept": "json"},
	)

	fields := logs.All()[0].ContextMap()
	for _, k := range []string{"api_key", "Authorization", "note"} {
		if fields[k] != "[REDACTED]" {
			t.Fatalf("%s = %v, want redacted", k, fields[k])
		}
	}
	if fields["provider"] != "graph-extractor" {
		t.Fatalf("provider = %v", fields["provider"])
	}
	headers := fields["headers"].(map[string]interface{})
	if headers["x-api-key"] != "[REDACTED]" || headers["accept"] != "json" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestHashesTenantIDs(t *testing.T) {
	log, logs := observed()
	log.With("tenant_id", "acme").Warn("slow")

	got, _ := logs.All()[0].ContextMap()["tenant_id"].(string)
	if !strings.HasPrefix(got, "hash:") || strings.Contains(got, "acme") {
		t.Fatalf("tenant_id = %q", got)
	}
}

func TestOddKeyValuesKeepTrailingValue(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("out = %v", out)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel() != zap.DebugLevel || parseLevel("WARN") != zap.WarnLevel || parseLevel("bogus") != zap.DebugLevel {
		t.Fatal("parseLevel")
	}
}

func TestLooksLikeAPIKey(t *testing.T) {
	if !looksLikeAPIKey("sk-acme-0123456789") || looksLikeAPIKey("sk-short") || looksLikeAPIKey("graph-extractor-gemini") {
		t.Fatal("looksLikeAPIKey")
	}
}
