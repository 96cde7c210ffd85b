package qdrant

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// Distance is used when a collection has to be created on first index. Empty means Cosine.
	Distance string
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL      ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL      ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidDistance ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorMissingURL:
		return "qdrant.url is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("qdrant.url=%q is not an absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("qdrant.distance=%q; want Cosine, Dot, Euclid or Manhattan", e.Value)
	}
	return "invalid qdrant config"
}

func (e *ConfigError) Unwrap() error { return e.Cause }

var distances = map[string]string{
	"":          "Cosine",
	"cosine":    "Cosine",
	"dot":       "Dot",
	"euclid":    "Euclid",
	"euclidean": "Euclid",
	"manhattan": "Manhattan",
}

// ValidateConfig checks the endpoint and distance metric before any request is made.
func ValidateConfig(cfg Config) error {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if _, ok := distances[strings.ToLower(strings.TrimSpace(cfg.Distance))]; !ok {
		return &ConfigError{Code: ConfigErrorInvalidDistance, Value: cfg.Distance}
	}
	return nil
}

// canonicalDistance maps a validated distance name to the spelling Qdrant expects.
func canonicalDistance(name string) string {
	return distances[strings.ToLower(strings.TrimSpace(name))]
}
