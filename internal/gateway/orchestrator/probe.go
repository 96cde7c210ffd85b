package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type ProbeRequest struct {
	Provider    string
	StrictJSON  bool
	Temperature float64
	Messages    []ports.Message
}

type ProbeResult struct {
	Provider   string
	Mode       string
	Text       string
	Data       any
	ParseError string
	Elapsed    time.Duration
}

var defaultProbeMessages = []ports.Message{
	{Role: "system", Content: "You are an information extraction engine. Output JSON only (short text if that is impossible)."},
	{Role: "user", Content: "Bob joined Acme as an engineer in 2022; Acme is headquartered in Taipei."},
}

// Probe sends one completion to a single provider so operators can check it answers and
// whether it honours JSON mode. A rate-limited call is retried once, like a chain attempt.
func (o *Orchestrator) Probe(ctx context.Context, req ProbeRequest) (ProbeResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.probe")
	defer span.End()

	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return ProbeResult{}, fmt.Errorf("%w: provider is required", ErrInvalidArgument)
	}
	if _, err := o.providers.Resolve([]string{provider}); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	messages := req.Messages
	if len(messages) == 0 {
		messages = defaultProbeMessages
	}
	if req.StrictJSON && !mentionsJSON(messages) {
		// JSON mode upstream requires the word "json" somewhere in the prompt.
		messages = append([]ports.Message{{Role: "system", Content: "Reply with a JSON object (JSON only)."}}, messages...)
	}

	start := time.Now()
	wait := o.cfg.RateLimitBackoff
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	text, err := backoff.Retry(ctx, func() (string, error) {
		out, err := o.completion.Complete(ctx, ports.CompletionRequest{
			Provider:    provider,
			Messages:    messages,
			ForceJSON:   req.StrictJSON,
			Temperature: req.Temperature,
		})
		if err != nil && !ports.IsRateLimited(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(wait)), backoff.WithMaxTries(2))
	if err != nil {
		span.RecordError(err)
		return ProbeResult{Provider: provider}, fmt.Errorf("probe %s: %w", provider, err)
	}

	res := ProbeResult{Provider: provider, Mode: "text", Text: text, Elapsed: time.Since(start)}
	if req.StrictJSON {
		v, perr := graphschema.DecodeJSONValue(text)
		if perr != nil {
			res.ParseError = perr.Error()
		} else {
			res.Mode = "json"
			res.Data = v
		}
	}
	return res, nil
}

func mentionsJSON(messages []ports.Message) bool {
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Content), "json") {
			return true
		}
	}
	return false
}
