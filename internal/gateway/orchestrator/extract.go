package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

// ExtractRequest overrides process defaults where fields are set.
type ExtractRequest struct {
	Context       string
	MinNodes      *int
	MinEdges      *int
	AllowEmpty    *bool
	ProviderChain []string
	MaxAttempts   int
	Parallelism   int
}

type ExtractResult struct {
	Payload      *graphschema.Payload
	ProviderUsed string
	Attempts     chain.AttemptLog
	SchemaHash   string
	Policy       graphschema.Policy
	Warnings     []string
}

// Extract turns free text into a graph payload through the provider chain. On exhaustion the
// returned error wraps *chain.ChainExhaustedError and the result still carries the attempt log.
func (o *Orchestrator) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.extract")
	defer span.End()
	start := time.Now()

	text := strings.TrimSpace(req.Context)
	if text == "" {
		return ExtractResult{}, fmt.Errorf("%w: context must be a non-empty string", ErrInvalidArgument)
	}
	if o.cfg.MaxContextChars > 0 && len([]rune(text)) > o.cfg.MaxContextChars {
		return ExtractResult{}, fmt.Errorf("%w: context exceeds %d characters", ErrInvalidArgument, o.cfg.MaxContextChars)
	}

	policy := o.policyFor(req)
	providers := o.providers.DefaultChain()
	if len(req.ProviderChain) > 0 {
		resolved, err := o.providers.Resolve(req.ProviderChain)
		if err != nil {
			return ExtractResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		providers = resolved
	}
	opts := chain.Options{
		MaxAttemptsPerProvider: o.cfg.MaxAttempts,
		Parallelism:            o.cfg.Parallelism,
		RateLimitBackoff:       o.cfg.RateLimitBackoff,
	}
	if req.MaxAttempts > 0 {
		opts.MaxAttemptsPerProvider = req.MaxAttempts
	}
	if req.Parallelism > 0 {
		opts.Parallelism = req.Parallelism
	}

	span.SetAttributes(
		attribute.Int("extract.providers", len(providers)),
		attribute.Int("extract.max_attempts", opts.MaxAttemptsPerProvider),
		attribute.Int("extract.parallelism", opts.Parallelism),
	)

	work := &extractionWork{
		completion:  o.completion,
		text:        text,
		policy:      policy,
		temperature: o.cfg.Temperature,
	}
	res, err := o.driver.Run(ctx, providers, work, opts)
	out := ExtractResult{
		Payload:    res.Payload,
		Attempts:   res.Log,
		SchemaHash: graphschema.SchemaHash(),
		Policy:     policy,
	}
	if err != nil {
		o.rec.ExtractDone("", false, len(res.Log), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		o.log.Warn("graph extraction failed", "attempts", len(res.Log), "error", err)
		return out, fmt.Errorf("extract: %w", err)
	}

	out.ProviderUsed = res.Provider.ID
	for _, e := range res.DanglingEdges {
		out.Warnings = append(out.Warnings, fmt.Sprintf("edge %s -[%s]-> %s references an unknown node", e.Src, e.Type, e.Dst))
	}
	o.rec.ExtractDone(out.ProviderUsed, true, len(res.Log), time.Since(start))
	span.SetAttributes(
		attribute.String("extract.provider_used", out.ProviderUsed),
		attribute.Int("extract.attempts", len(res.Log)),
		attribute.Int("extract.nodes", len(res.Payload.Nodes)),
		attribute.Int("extract.edges", len(res.Payload.Edges)),
	)
	o.log.Info("graph extracted",
		"provider", out.ProviderUsed, "attempts", len(res.Log),
		"nodes", len(res.Payload.Nodes), "edges", len(res.Payload.Edges), "warnings", len(out.Warnings))
	return out, nil
}

func (o *Orchestrator) policyFor(req ExtractRequest) graphschema.Policy {
	p := o.cfg.Policy
	if req.MinNodes != nil {
		p.MinNodes = *req.MinNodes
	}
	if req.MinEdges != nil {
		p.MinEdges = *req.MinEdges
	}
	if req.AllowEmpty != nil {
		p.AllowEmpty = *req.AllowEmpty
	}
	return p
}

// extractionWork is the chain.UnitOfWork for graph extraction. It is read-only after
// construction and therefore safe for concurrent attempts.
type extractionWork struct {
	completion  ports.Completion
	text        string
	policy      graphschema.Policy
	temperature float64
}

func (w *extractionWork) Attempt(ctx context.Context, p chain.ProviderDescriptor, mode chain.Mode, hint *graphschema.RepairHint) (string, error) {
	return w.completion.Complete(ctx, ports.CompletionRequest{
		Provider:    p.ID,
		Messages:    extractionMessages(w.text, mode, hint),
		ForceJSON:   p.SupportsStrictJSON,
		Temperature: w.temperature,
	})
}

func (w *extractionWork) Accept(raw string) (*graphschema.Payload, graphschema.Validation) {
	return graphschema.Check(raw, w.policy)
}

func (w *extractionWork) Hint(d *graphschema.Defect) *graphschema.RepairHint {
	return graphschema.HintFor(d, w.policy)
}

const extractionSystemPrompt = "You are an information extraction engine that converts text into graph data (nodes and edges). " +
	"Extract only what the context supports; never invent facts. " +
	"Every node and edge carries props as a list of {\"key\",\"value\"} objects. " +
	"If evidence is thin you may emit low-confidence candidates marked with {\"key\":\"low_confidence\",\"value\":true}. " +
	"Produce at least one relationship where the text allows it. " +
	"Output JSON only, matching this schema: "

const extractionUserTemplate = "Context:\n%s\n\n" +
	"Task: extract nodes and edges, filling props with dates, amounts, places, titles and URLs where present.\n" +
	"Example relationship types:\n" +
	"- EMPLOYED_AT: props role, start_date, location\n" +
	"- FOUNDED_BY: props year\n" +
	"- HEADQUARTERED_IN: props city\n" +
	"No markdown, no prose, no blank strings."

func extractionMessages(text string, mode chain.Mode, hint *graphschema.RepairHint) []ports.Message {
	sys := extractionSystemPrompt + graphschema.SchemaJSON()
	switch {
	case mode == chain.ModeNudged && hint != nil:
		sys += "\n\n" + hint.Instruction
	case mode == chain.ModeStrict:
		sys += "\n\nDo not return completely empty arrays."
	}
	return []ports.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: fmt.Sprintf(extractionUserTemplate, text)},
	}
}
