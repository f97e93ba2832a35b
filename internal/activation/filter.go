package activation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/engagement"
)

const (
	// DefaultMaxParallel bounds concurrent judge calls per cycle.
	DefaultMaxParallel = 4

	// DefaultJudgeTimeout caps one judgment call.
	DefaultJudgeTimeout = 10 * time.Second
)

// Options tunes a Filter. Zero values select the defaults.
type Options struct {
	CacheSize    int
	CacheTTL     time.Duration
	MaxParallel  int
	JudgeTimeout time.Duration

	// JudgeRate throttles judge calls across all conversations.
	// nil = unlimited.
	JudgeRate *rate.Limiter

	// Rand overrides the uniform source for RANDOM policies (tests).
	Rand func() float64
}

// Filter computes the eligible action set for one cycle.
type Filter struct {
	judge        Judge
	cache        *JudgmentCache
	maxParallel  int
	judgeTimeout time.Duration
	limiter      *rate.Limiter
	randFloat    func() float64
}

// NewFilter creates a filter backed by judge for LLM-judged policies.
// judge may be nil when no registered action uses llm_judge.
func NewFilter(judge Judge, opts Options) *Filter {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.JudgeTimeout <= 0 {
		opts.JudgeTimeout = DefaultJudgeTimeout
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Filter{
		judge:        judge,
		cache:        NewJudgmentCache(opts.CacheSize, opts.CacheTTL),
		maxParallel:  opts.MaxParallel,
		judgeTimeout: opts.JudgeTimeout,
		limiter:      opts.JudgeRate,
		randFloat:    opts.Rand,
	}
}

// Cache exposes the judgment cache (observability, tests).
func (f *Filter) Cache() *JudgmentCache { return f.cache }

// Filter reduces snapshot to the eligible set for this cycle.
// Per-action evaluation is independent and order-independent; judge
// failures are fail-closed and never abort the other evaluations.
func (f *Filter) Filter(ctx context.Context, snapshot map[string]*actions.ActionDescriptor, transcript string, mode engagement.Mode) map[string]*actions.ActionDescriptor {
	eligible := make(map[string]*actions.ActionDescriptor)
	var judged []*actions.ActionDescriptor

	for name, desc := range snapshot {
		switch desc.Activation.Kind {
		case actions.PolicyAlways:
			eligible[name] = desc
		case actions.PolicyNever:
			// excluded unconditionally
		case actions.PolicyRandom:
			if f.randFloat() < desc.Activation.Probability {
				eligible[name] = desc
			}
		case actions.PolicyKeyword:
			if matchesKeyword(desc.Activation, transcript) {
				eligible[name] = desc
			}
		case actions.PolicyLLMJudge:
			judged = append(judged, desc)
		default:
			slog.Warn("action with unknown policy kind excluded",
				"action", name, "kind", desc.Activation.Kind)
		}
	}

	if len(judged) > 0 {
		f.judgeBatch(ctx, judged, transcript, mode, eligible)
	}
	return eligible
}

// judgeBatch resolves all pending LLM judgments for a cycle. The batch
// is shuffled to remove ordering bias, dispatched with bounded
// parallelism, and each verdict cached under (action, transcript).
func (f *Filter) judgeBatch(ctx context.Context, pending []*actions.ActionDescriptor, transcript string, mode engagement.Mode, eligible map[string]*actions.ActionDescriptor) {
	rand.Shuffle(len(pending), func(i, j int) {
		pending[i], pending[j] = pending[j], pending[i]
	})

	type verdict struct {
		desc      *actions.ActionDescriptor
		activated bool
	}
	results := make([]verdict, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxParallel)

	for i, desc := range pending {
		i, desc := i, desc
		g.Go(func() error {
			results[i] = verdict{desc: desc, activated: f.judgeOne(gctx, desc, transcript)}
			return nil
		})
	}
	g.Wait() // workers never return errors; failures are fail-closed

	for _, v := range results {
		if v.activated {
			eligible[v.desc.Name] = v.desc
		}
	}

	slog.Debug("activation judgments resolved",
		"mode", mode, "judged", len(pending), "eligible_total", len(eligible))
}

// judgeOne returns the cached or freshly judged activation for desc.
// Any error or timeout yields false: not activated, logged, no retry
// within the same cycle.
func (f *Filter) judgeOne(ctx context.Context, desc *actions.ActionDescriptor, transcript string) bool {
	key := Key(desc.Name, transcript)
	if activated, ok := f.cache.Get(key); ok {
		return activated
	}

	if f.judge == nil {
		slog.Warn("llm_judge action with no judge configured", "action", desc.Name)
		return false
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			slog.Warn("judge rate wait cancelled", "action", desc.Name, "error", err)
			return false
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, f.judgeTimeout)
	defer cancel()

	activated, err := f.judge.JudgeActivation(callCtx, desc, transcript)
	if err != nil {
		slog.Warn("activation judgment failed, treating as not activated",
			"action", desc.Name, "error", err)
		return false
	}

	f.cache.Put(key, activated)
	return activated
}

// matchesKeyword reports whether transcript contains any policy keyword,
// case-folded unless the policy is case-sensitive.
func matchesKeyword(p actions.Policy, transcript string) bool {
	haystack := transcript
	if !p.CaseSensitive {
		haystack = strings.ToLower(transcript)
	}
	for _, kw := range p.Keywords {
		if kw == "" {
			continue
		}
		if !p.CaseSensitive {
			kw = strings.ToLower(kw)
		}
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
