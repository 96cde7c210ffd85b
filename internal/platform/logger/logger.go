package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a zap-backed logger. mode selects the production (JSON) or development
// (console) encoder; level is optional and defaults to debug.
func New(mode string, level ...string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level...))
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used by tests and optional wiring.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func parseLevel(level ...string) zapcore.Level {
	if len(level) == 0 {
		return zap.DebugLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level[0])))); err != nil {
		return zap.DebugLevel
	}
	return lvl
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...any) { l.SugaredLogger.Debugw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.SugaredLogger.Infow(msg, sanitizeKVs(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.SugaredLogger.Warnw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.SugaredLogger.Errorw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.SugaredLogger.Fatalw(msg, sanitizeKVs(kv)...) }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

const redacted = "[REDACTED]"

type fieldClass uint8

const (
	fieldPlain fieldClass = iota
	fieldSecret
	fieldHashed
)

// Matched as substrings of the lowercased key. Secret wins over hashed.
var (
	secretKeyParts = []string{"token", "authorization", "password", "secret", "api_key", "apikey", "x-api-key", "litellm_key"}
	hashedKeyParts = []string{"tenant_id", "client_ip"}
)

func classifyKey(key string) fieldClass {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fieldPlain
	}
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return fieldSecret
		}
	}
	for _, part := range hashedKeyParts {
		if strings.Contains(key, part) {
			return fieldHashed
		}
	}
	return fieldPlain
}

type redactionPolicy struct {
	enabled bool
	salt    string
}

// LOG_REDACTION_ENABLED=false turns scrubbing off; LOG_HASH_SALT salts hashed fields.
var loadPolicy = sync.OnceValue(func() redactionPolicy {
	p := redactionPolicy{enabled: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		p.enabled = false
	}
	return p
})

func sanitizeKVs(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	pol := loadPolicy()
	if !pol.enabled {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := toString(kv[i])
		out = append(out, key, pol.scrub(classifyKey(key), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func (p redactionPolicy) scrub(class fieldClass, val any) any {
	switch class {
	case fieldSecret:
		return redacted
	case fieldHashed:
		return p.hash(val)
	}
	switch v := val.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = p.scrub(classifyKey(k), inner)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = p.scrub(fieldPlain, inner)
		}
		return out
	case string:
		if looksLikeAPIKey(v) {
			return redacted
		}
	}
	return val
}

func (p redactionPolicy) hash(val any) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(p.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

// Gateway keys look like sk-<tenant>-<random>.
func looksLikeAPIKey(s string) bool {
	return strings.HasPrefix(s, "sk-") && strings.Count(s, "-") >= 2 && len(s) > 16
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
