package graphschema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoJSONObject = errors.New("no json object found")
	ErrInvalidJSON  = errors.New("invalid json payload")
)

// Parse turns raw model output into a Payload. Any failure is reported as a parse defect;
// a nil defect means the output had the declared shape (content thresholds are checked
// separately by Validate).
func Parse(raw string) (*Payload, *Defect) {
	if strings.TrimSpace(raw) == "" {
		return nil, &Defect{Kind: DefectParse, Reason: "empty output"}
	}
	obj, err := DecodeJSONValue(raw)
	if err != nil {
		return nil, &Defect{Kind: DefectParse, Reason: err.Error()}
	}
	return normalize(obj)
}

// DecodeJSONValue decodes raw as JSON, tolerating markdown fences and prose around a single
// top-level object.
func DecodeJSONValue(raw string) (any, error) {
	clean := sanitizeJSONText(raw)
	var v any
	if err := json.Unmarshal([]byte(clean), &v); err == nil {
		return v, nil
	}
	snippet, err := ExtractJSONObject(clean)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snippet), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return v, nil
}

// ExtractJSONObject returns the first balanced {...} region of s. The widest
// first-brace-to-last-brace span is tried first, then a brace-depth scan that ignores
// braces inside string literals.
func ExtractJSONObject(s string) (string, error) {
	t := sanitizeJSONText(s)
	start := strings.IndexByte(t, '{')
	end := strings.LastIndexByte(t, '}')
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSONObject
	}
	wide := t[start : end+1]
	if json.Valid([]byte(wide)) {
		return wide, nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(t); i++ {
		ch := t[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := t[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, nil
				}
				return "", ErrInvalidJSON
			}
		}
	}
	return "", ErrInvalidJSON
}

func sanitizeJSONText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Strip leading ```lang and trailing ```
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
