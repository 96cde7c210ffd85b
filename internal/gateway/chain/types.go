// Package chain drives one unit of work through an ordered list of upstream providers.
// Each provider gets a strict attempt, then nudged attempts carrying a repair hint when the
// previous output was defective. The first accepted payload wins.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type ProviderKind string

const (
	KindCompletion ProviderKind = "completion"
	KindExtraction ProviderKind = "extraction"
)

// ProviderDescriptor is immutable once the provider registry is built.
type ProviderDescriptor struct {
	ID                 string       `json:"id"`
	Kind               ProviderKind `json:"kind"`
	SupportsStrictJSON bool         `json:"supports_strict_json"`
}

type Mode string

const (
	ModeStrict Mode = "strict"
	ModeNudged Mode = "nudged"
)

// AttemptRecord is closed exactly once, when the attempt's outcome is known.
type AttemptRecord struct {
	ProviderID       string               `json:"provider"`
	Mode             Mode                 `json:"mode"`
	Slot             int                  `json:"slot"`
	RawOutput        string               `json:"raw_output,omitempty"`
	Payload          *graphschema.Payload `json:"-"`
	Err              error                `json:"-"`
	ErrorText        string               `json:"error,omitempty"`
	ErrorKind        ports.ErrorKind      `json:"error_kind,omitempty"`
	Defect           *graphschema.Defect  `json:"defect,omitempty"`
	DanglingEdges    int                  `json:"dangling_edges,omitempty"`
	RateLimitRetried bool                 `json:"rate_limit_retried,omitempty"`
	Accepted         bool                 `json:"accepted"`
	Elapsed          time.Duration        `json:"-"`
	ElapsedMS        int64                `json:"elapsed_ms"`
}

func (r AttemptRecord) Failed() bool { return !r.Accepted }

// AttemptLog is ordered by completion.
type AttemptLog []AttemptRecord

// Providers returns the distinct provider ids in log order.
func (l AttemptLog) Providers() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range l {
		if _, ok := seen[r.ProviderID]; ok {
			continue
		}
		seen[r.ProviderID] = struct{}{}
		out = append(out, r.ProviderID)
	}
	return out
}

// UnitOfWork is what the driver retries: one provider call plus the acceptance check for
// its output.
type UnitOfWork interface {
	Attempt(ctx context.Context, provider ProviderDescriptor, mode Mode, hint *graphschema.RepairHint) (string, error)
	Accept(raw string) (*graphschema.Payload, graphschema.Validation)
	Hint(defect *graphschema.Defect) *graphschema.RepairHint
}

type Options struct {
	MaxAttemptsPerProvider int
	Parallelism            int
	RateLimitBackoff       time.Duration
}

const (
	DefaultMaxAttempts      = 2
	DefaultRateLimitBackoff = 300 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.MaxAttemptsPerProvider <= 0 {
		o.MaxAttemptsPerProvider = DefaultMaxAttempts
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = DefaultRateLimitBackoff
	}
	return o
}

type Result struct {
	Payload       *graphschema.Payload
	Provider      ProviderDescriptor
	DanglingEdges []graphschema.Edge
	Log           AttemptLog
}

var ErrEmptyChain = errors.New("provider chain is empty")

// ChainExhaustedError is returned when no provider produced an accepted payload.
type ChainExhaustedError struct {
	Chain []string
	Log   AttemptLog
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("provider chain exhausted: %d attempts across %d providers", len(e.Log), len(e.Chain))
}
