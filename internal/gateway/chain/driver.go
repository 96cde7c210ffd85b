package chain

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/graphrag-gateway/internal/gateway/graphschema"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

const maxRawOutputBytes = 4096

// Observer receives every closed attempt record, in completion order.
type Observer interface {
	ObserveAttempt(rec AttemptRecord)
}

type Driver struct {
	log      *logger.Logger
	observer Observer
}

func New(log *logger.Logger, observer Observer) *Driver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Driver{log: log, observer: observer}
}

// Run executes work against providers in order and returns the first accepted payload.
// The attempt log is populated in the returned Result on success and on every error path.
// work must be safe for concurrent use when opts.Parallelism > 1.
func (d *Driver) Run(ctx context.Context, providers []ProviderDescriptor, work UnitOfWork, opts Options) (Result, error) {
	if len(providers) == 0 {
		return Result{}, ErrEmptyChain
	}
	if work == nil {
		return Result{}, fmt.Errorf("chain: nil unit of work")
	}
	opts = opts.withDefaults()

	var log AttemptLog
	rest := providers
	if opts.Parallelism > 1 && len(providers) > 1 {
		width := min(opts.Parallelism, len(providers))
		res, ok, err := d.race(ctx, providers[:width], work, opts, &log)
		if ok {
			return res, nil
		}
		if err != nil {
			return Result{Log: log}, err
		}
		rest = providers[width:]
	}

	for _, p := range rest {
		var hint *graphschema.RepairHint
		for slot := 1; slot <= opts.MaxAttemptsPerProvider; slot++ {
			if err := ctx.Err(); err != nil {
				return Result{Log: log}, fmt.Errorf("chain: %w", err)
			}
			mode := ModeStrict
			if hint != nil {
				mode = ModeNudged
			}
			rec := d.attempt(ctx, p, slot, mode, hint, work, opts)
			log = append(log, rec)
			if rec.Accepted {
				return d.result(p, rec, log), nil
			}
			// Backend failures retry plainly; only a defect earns a nudge.
			hint = nil
			if rec.Defect != nil {
				hint = work.Hint(rec.Defect)
			}
		}
		d.log.Info("provider exhausted, advancing", "provider", p.ID, "attempts", opts.MaxAttemptsPerProvider)
	}

	return Result{Log: log}, &ChainExhaustedError{Chain: providerIDs(providers), Log: log}
}

type raced struct {
	provider ProviderDescriptor
	rec      AttemptRecord
}

// race launches one strict attempt per provider and returns on the first accepted one.
// Siblings keep running on a context detached from ctx's cancellation; their results land
// in the buffered channel and are dropped.
func (d *Driver) race(ctx context.Context, launched []ProviderDescriptor, work UnitOfWork, opts Options, log *AttemptLog) (Result, bool, error) {
	detached := context.WithoutCancel(ctx)
	results := make(chan raced, len(launched))
	for _, p := range launched {
		go func() {
			results <- raced{provider: p, rec: d.attempt(detached, p, 1, ModeStrict, nil, work, opts)}
		}()
	}

	for pending := len(launched); pending > 0; pending-- {
		select {
		case r := <-results:
			*log = append(*log, r.rec)
			if r.rec.Accepted {
				if pending > 1 {
					d.log.Debug("detaching sibling attempts", "winner", r.provider.ID, "pending", pending-1)
				}
				return d.result(r.provider, r.rec, *log), true, nil
			}
		case <-ctx.Done():
			return Result{}, false, fmt.Errorf("chain: %w", ctx.Err())
		}
	}
	return Result{}, false, nil
}

func (d *Driver) attempt(ctx context.Context, p ProviderDescriptor, slot int, mode Mode, hint *graphschema.RepairHint, work UnitOfWork, opts Options) AttemptRecord {
	rec := AttemptRecord{ProviderID: p.ID, Mode: mode, Slot: slot}
	start := time.Now()

	tries := 0
	raw, err := backoff.Retry(ctx, func() (string, error) {
		tries++
		out, err := work.Attempt(ctx, p, mode, hint)
		if err != nil && !ports.IsRateLimited(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.RateLimitBackoff)),
		backoff.WithMaxTries(2),
	)
	rec.RateLimitRetried = tries > 1

	if err != nil {
		rec.Err = err
		rec.ErrorText = err.Error()
		rec.ErrorKind = ports.KindOf(err)
		d.log.Warn("provider attempt failed",
			"provider", p.ID, "mode", mode, "slot", slot,
			"error_kind", rec.ErrorKind, "rate_limit_retried", rec.RateLimitRetried, "error", err)
	} else {
		rec.RawOutput = clip(raw, maxRawOutputBytes)
		payload, v := work.Accept(raw)
		if v.OK() {
			rec.Accepted = true
			rec.Payload = payload
			rec.DanglingEdges = len(v.DanglingEdges)
			if rec.DanglingEdges > 0 {
				d.log.Warn("accepted payload has dangling edges", "provider", p.ID, "dangling_edges", rec.DanglingEdges)
			}
		} else {
			rec.Defect = v.Defect
			d.log.Info("provider output rejected",
				"provider", p.ID, "mode", mode, "slot", slot,
				"defect_kind", v.Defect.Kind, "reason", v.Defect.Reason)
		}
	}

	rec.Elapsed = time.Since(start)
	rec.ElapsedMS = rec.Elapsed.Milliseconds()
	if d.observer != nil {
		d.observer.ObserveAttempt(rec)
	}
	return rec
}

func (d *Driver) result(p ProviderDescriptor, rec AttemptRecord, log AttemptLog) Result {
	return Result{
		Payload:       rec.Payload,
		Provider:      p,
		DanglingEdges: graphschema.DanglingEdges(rec.Payload),
		Log:           log,
	}
}

func providerIDs(providers []ProviderDescriptor) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.ID
	}
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
