// Package loop drives one conversation: observe → filter → plan →
// execute → record → update engagement, forever. One goroutine per
// conversation; cycles never overlap within a conversation.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lunamoth/heartflow/internal/actions"
	"github.com/lunamoth/heartflow/internal/activation"
	"github.com/lunamoth/heartflow/internal/bus"
	"github.com/lunamoth/heartflow/internal/engagement"
	"github.com/lunamoth/heartflow/internal/planner"
	"github.com/lunamoth/heartflow/internal/providers"
	"github.com/lunamoth/heartflow/internal/store"
	"github.com/lunamoth/heartflow/internal/tracing"
	"github.com/lunamoth/heartflow/internal/transcript"
)

// ErrAborted distinguishes an externally signalled abort from an
// ordinary timeout.
var ErrAborted = errors.New("aborted by external signal")

// abortPollInterval is how often in-flight calls check the abort signal.
const abortPollInterval = 200 * time.Millisecond

// CrashPolicy selects what an uncaught panic in the cycle body does.
type CrashPolicy string

const (
	// CrashRestart restarts the loop after a fixed backoff.
	CrashRestart CrashPolicy = "restart"

	// CrashStop terminates this conversation's orchestration and
	// escalates through OnTerminate.
	CrashStop CrashPolicy = "stop"
)

// Options tunes one conversation loop.
type Options struct {
	ConversationID string

	// Readiness gate: act when unread count, accumulated interest or
	// idle time crosses its threshold.
	ReadinessCount    int
	InterestThreshold float64
	Idle              time.Duration
	Sleep             time.Duration

	HistorySize     int
	RecentWindow    int // messages rendered into the transcript
	MaxHistoryLines int

	CrashPolicy       CrashPolicy
	RestartBackoff    time.Duration
	TimeoutWarnStreak int

	// DecayTick starts the periodic passive-energy-decay driver.
	// 0 disables it.
	DecayTick time.Duration

	ReplyTimeout     time.Duration
	TranscriptBudget int // tokens, 0 = unlimited

	// OnTerminate is the supervisor escalation hook, called when the
	// loop stops itself (crash policy "stop").
	OnTerminate func(conversationID string, err error)
}

func (o *Options) applyDefaults() {
	if o.ReadinessCount <= 0 {
		o.ReadinessCount = 3
	}
	if o.InterestThreshold <= 0 {
		o.InterestThreshold = 2.0
	}
	if o.Idle <= 0 {
		o.Idle = 2 * time.Minute
	}
	if o.Sleep <= 0 {
		o.Sleep = 1500 * time.Millisecond
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 64
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = 40
	}
	if o.MaxHistoryLines <= 0 {
		o.MaxHistoryLines = 10
	}
	if o.CrashPolicy == "" {
		o.CrashPolicy = CrashRestart
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = 5 * time.Second
	}
	if o.TimeoutWarnStreak <= 0 {
		o.TimeoutWarnStreak = 3
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = 30 * time.Second
	}
}

// Deps are the loop's collaborators.
type Deps struct {
	Inbox    *bus.Inbox
	Registry *actions.Registry
	Filter   *activation.Filter
	Planner  *planner.Planner
	Model    *engagement.Model
	Renderer transcript.Renderer
	Replies  ReplyGenerator
	Sender   Sender
	Sink     store.Sink
}

// Loop is one conversation's orchestration driver.
type Loop struct {
	opts    Options
	deps    Deps
	history *History

	running atomic.Bool
	aborted atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// cycle-local state, touched only between cycles or under mu
	mu                sync.Mutex
	silentUntilCalled bool
	sleepUntil        time.Time
	lastActAt         time.Time
	timeoutStreak     int
}

// New creates a loop. Deps.Sink may be nil (records are discarded).
func New(opts Options, deps Deps) *Loop {
	opts.applyDefaults()
	if deps.Sink == nil {
		deps.Sink = store.NopSink{}
	}
	return &Loop{
		opts:      opts,
		deps:      deps,
		history:   NewHistory(opts.HistorySize),
		lastActAt: time.Now(),
	}
}

// History exposes the finalized cycle records for observability.
func (l *Loop) History() *History { return l.history }

// IsRunning reports whether the loop is active.
func (l *Loop) IsRunning() bool { return l.running.Load() }

// Start launches the cycle driver. Idempotent: a no-op when already
// running. On a restart it first joins the drivers of the previous run,
// so a Stop/Start sequence never leaves two drivers racing on one loop.
func (l *Loop) Start() {
	if !l.running.CompareAndSwap(false, true) {
		slog.Debug("loop already running", "conversation", l.opts.ConversationID)
		return
	}
	l.wg.Wait()

	stopCh := make(chan struct{})
	l.mu.Lock()
	l.stopCh = stopCh
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(stopCh)

	if l.opts.DecayTick > 0 {
		l.wg.Add(1)
		go l.decayLoop(stopCh)
	}
	slog.Info("loop started", "conversation", l.opts.ConversationID)
}

// Stop flags the loop to exit after its current step completes. It does
// not cancel in-flight work; use Abort for that.
func (l *Loop) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.mu.Lock()
	stopCh := l.stopCh
	l.mu.Unlock()
	close(stopCh)
	slog.Info("loop stopping", "conversation", l.opts.ConversationID)
}

// Wait blocks until the driver goroutines have exited.
func (l *Loop) Wait() { l.wg.Wait() }

// Abort cancels in-flight external calls for the current cycle. The
// cycle ends early with a distinguishable aborted condition; the loop
// continues with its next observe phase.
func (l *Loop) Abort() {
	l.aborted.Store(true)
	slog.Info("loop abort signalled", "conversation", l.opts.ConversationID)
}

// --- drivers ---

// run drives cycles until stopCh closes. Exit is keyed to the run's own
// stop channel, never the shared field, so a driver from a stopped run
// can never be revived by a later Start.
func (l *Loop) run(stopCh chan struct{}) {
	defer l.wg.Done()

	for {
		alive, panicked, panicErr := l.cycleSafe(stopCh)
		if !alive {
			return
		}
		if !panicked {
			continue
		}

		switch l.opts.CrashPolicy {
		case CrashStop:
			if l.running.CompareAndSwap(true, false) {
				close(stopCh)
			}
			slog.Error("loop terminated after crash",
				"conversation", l.opts.ConversationID, "error", panicErr)
			if l.opts.OnTerminate != nil {
				l.opts.OnTerminate(l.opts.ConversationID, panicErr)
			}
			return
		default: // restart after fixed backoff
			slog.Error("loop crashed, restarting after backoff",
				"conversation", l.opts.ConversationID,
				"backoff", l.opts.RestartBackoff, "error", panicErr)
			select {
			case <-time.After(l.opts.RestartBackoff):
			case <-stopCh:
				return
			}
		}
	}
}

// cycleSafe runs one cycle with top-level panic recovery. alive is false
// once this run has been stopped.
func (l *Loop) cycleSafe(stopCh chan struct{}) (alive, panicked bool, err error) {
	alive = true
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("cycle panic: %v", r)
			slog.Error("uncaught panic in cycle body",
				"conversation", l.opts.ConversationID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	if !l.waitReady(stopCh) {
		alive = false
		return
	}
	l.cycle()
	return
}

func (l *Loop) decayLoop(stopCh chan struct{}) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.DecayTick)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			l.deps.Model.DecayTick(now)
		}
	}
}

// --- readiness ---

// waitReady blocks until enough signal has accumulated to run a cycle,
// or this run's stop channel closes. Returns false on stop.
func (l *Loop) waitReady(stopCh chan struct{}) bool {
	for {
		select {
		case <-stopCh:
			return false
		default:
		}
		if l.ready() {
			return true
		}
		select {
		case <-stopCh:
			return false
		case <-l.deps.Inbox.Notify():
		case <-time.After(l.opts.Sleep):
		}
	}
}

// ready applies the accumulation gate: message count, accumulated
// interest, or idle age of pending messages.
func (l *Loop) ready() bool {
	l.mu.Lock()
	sleepUntil := l.sleepUntil
	silent := l.silentUntilCalled
	lastAct := l.lastActAt
	l.mu.Unlock()

	if time.Now().Before(sleepUntil) {
		return false
	}

	unread := l.deps.Inbox.Unread()
	if len(unread) == 0 {
		return false
	}

	if silent {
		for _, m := range unread {
			if m.Mentioned {
				l.mu.Lock()
				l.silentUntilCalled = false
				l.mu.Unlock()
				return true
			}
		}
		return false
	}

	if len(unread) >= l.opts.ReadinessCount {
		return true
	}
	if l.deps.Inbox.AccumulatedInterest() >= l.opts.InterestThreshold {
		return true
	}
	return time.Since(lastAct) >= l.opts.Idle
}

// --- the cycle ---

func (l *Loop) cycle() {
	l.aborted.Store(false)

	rec := CycleRecord{
		ID:             uuid.NewString(),
		ConversationID: l.opts.ConversationID,
		StartedAt:      time.Now(),
	}
	ctx, span := tracing.Tracer().Start(context.Background(), "cycle",
		trace.WithAttributes(
			attribute.String("conversation", l.opts.ConversationID),
			attribute.String("cycle_id", rec.ID),
		))
	defer span.End()

	// 1. Observe.
	tObserve := time.Now()
	unread := l.deps.Inbox.Unread()
	interest := l.deps.Inbox.AccumulatedInterest()
	l.deps.Model.ObserveTraffic(len(unread), normalizeInterest(interest, l.opts.InterestThreshold))
	state := l.deps.Model.Snapshot()
	rec.Timings.Observe = time.Since(tObserve)

	// 2. Render + filter.
	tFilter := time.Now()
	msgs := l.deps.Inbox.Recent(l.opts.RecentWindow)
	historyLines := l.history.ActionLines(l.opts.MaxHistoryLines)
	rendered := l.deps.Renderer.Render(msgs, historyLines, transcript.Options{
		TokenBudget: l.opts.TranscriptBudget,
	})
	eligible := l.deps.Filter.Filter(ctx, l.deps.Registry.Snapshot(), rendered, state.Mode)
	rec.Timings.Filter = time.Since(tFilter)

	if !l.running.Load() {
		return
	}

	// 3. Plan. The abort signal is polled while the call is in flight.
	tPlan := time.Now()
	planCtx, cancelPlan := l.abortable(ctx)
	decisions, planErr := l.deps.Planner.Plan(planCtx, planner.Input{
		Eligible:   eligible,
		Transcript: rendered,
		Messages:   msgs,
		History:    historyLines,
		Engagement: state,
	})
	cancelPlan()
	rec.Timings.Plan = time.Since(tPlan)
	l.trackTimeouts(planErr)

	if providers.IsAborted(planErr) {
		rec.Aborted = true
		rec.FinishedAt = time.Now()
		l.finalize(rec, decisions)
		slog.Warn("cycle aborted during planning", "conversation", l.opts.ConversationID)
		return
	}

	// 4. Execute all decisions concurrently; each recovers on its own.
	tExec := time.Now()
	rec.Outcomes = l.executeAll(ctx, decisions, msgs, eligible)
	rec.Timings.Execute = time.Since(tExec)

	// 5. Record, advance, update engagement.
	l.deps.Inbox.Advance()
	rec.FinishedAt = time.Now()
	l.finalize(rec, nil)

	replied, decided := summarize(rec.Outcomes)
	l.deps.Model.AfterCycle(engagement.CycleOutcome{Replied: replied, Decided: decided})
	if decided {
		l.mu.Lock()
		l.lastActAt = time.Now()
		l.mu.Unlock()
	}

	slog.Debug("cycle finished",
		"conversation", l.opts.ConversationID,
		"cycle_id", rec.ID,
		"decisions", len(rec.Outcomes),
		"failures", rec.Failures(),
		"plan_ms", rec.Timings.Plan.Milliseconds(),
	)
}

// finalize appends the record to history and emits it to the sink.
// aborted cycles pass their never-executed decisions for the record.
func (l *Loop) finalize(rec CycleRecord, unexecuted []planner.Decision) {
	for _, d := range unexecuted {
		rec.Outcomes = append(rec.Outcomes, Outcome{
			Decision: d,
			Success:  false,
			Err:      ErrAborted.Error(),
		})
	}
	l.history.Append(rec)

	if err := l.deps.Sink.RecordCycle(store.CycleSummary{
		ConversationID: rec.ConversationID,
		CycleID:        rec.ID,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
		Decisions:      len(rec.Outcomes),
		Failures:       rec.Failures(),
		PlanDuration:   rec.Timings.Plan,
		FilterDuration: rec.Timings.Filter,
	}); err != nil {
		slog.Warn("cycle record not persisted", "error", err)
	}
	for _, o := range rec.Outcomes {
		if err := l.deps.Sink.RecordDecision(store.DecisionRecord{
			ConversationID: rec.ConversationID,
			CycleID:        rec.ID,
			Action:         o.Decision.Action,
			Reasoning:      o.Decision.Reasoning,
			Params:         o.Decision.Params,
			Success:        o.Success,
			Timestamp:      rec.FinishedAt,
		}); err != nil {
			slog.Warn("decision record not persisted", "error", err)
		}
	}
}

// trackTimeouts raises an operational warning after N consecutive
// planning timeouts, without halting the loop.
func (l *Loop) trackTimeouts(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if providers.IsTimeout(err) {
		l.timeoutStreak++
		if l.timeoutStreak >= l.opts.TimeoutWarnStreak {
			slog.Warn("repeated planning timeouts",
				"conversation", l.opts.ConversationID,
				"consecutive", l.timeoutStreak)
		}
		return
	}
	l.timeoutStreak = 0
}

// --- decision execution ---

// executeAll runs the cycle's decisions. Decisions whose descriptor
// allows it (and all built-ins) run concurrently; actions not marked
// parallel-allowed run one at a time. One failing or panicking action
// never cancels its siblings; results keep decision order.
func (l *Loop) executeAll(ctx context.Context, decisions []planner.Decision, msgs []bus.Message, eligible map[string]*actions.ActionDescriptor) []Outcome {
	outcomes := make([]Outcome, len(decisions))
	var wg sync.WaitGroup
	var serial []int

	for i, d := range decisions {
		if desc, ok := eligible[d.Action]; ok && !desc.ParallelAllowed {
			serial = append(serial, i)
			continue
		}
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.executeInto(ctx, &outcomes[i], d, msgs, eligible)
		}()
	}
	for _, i := range serial {
		l.executeInto(ctx, &outcomes[i], decisions[i], msgs, eligible)
	}
	wg.Wait()
	return outcomes
}

// executeInto runs one decision with panic containment, writing its
// outcome in place.
func (l *Loop) executeInto(ctx context.Context, out *Outcome, d planner.Decision, msgs []bus.Message, eligible map[string]*actions.ActionDescriptor) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			*out = Outcome{
				Decision: d,
				Err:      fmt.Sprintf("action panic: %v", r),
				Duration: time.Since(start),
			}
			slog.Error("action executor panicked",
				"conversation", l.opts.ConversationID,
				"action", d.Action, "panic", r)
		}
	}()
	*out = l.execute(ctx, d, msgs, eligible)
	out.Duration = time.Since(start)
}

func (l *Loop) execute(ctx context.Context, d planner.Decision, msgs []bus.Message, eligible map[string]*actions.ActionDescriptor) Outcome {
	switch d.Action {
	case actions.ActionNoReply:
		return Outcome{Decision: d, Success: true}

	case actions.ActionNoReplyUntilCalled:
		l.mu.Lock()
		l.silentUntilCalled = true
		l.mu.Unlock()
		return Outcome{Decision: d, Success: true, Display: "staying silent until called"}

	case actions.ActionWaitTime:
		seconds := paramFloat(d.Params, "seconds", 30)
		l.mu.Lock()
		l.sleepUntil = time.Now().Add(time.Duration(seconds * float64(time.Second)))
		l.mu.Unlock()
		return Outcome{Decision: d, Success: true,
			Display: fmt.Sprintf("waiting %.0fs", seconds)}

	case actions.ActionReply:
		return l.executeReply(ctx, d, msgs)

	default:
		return l.executePlugin(ctx, d, eligible)
	}
}

func (l *Loop) executeReply(ctx context.Context, d planner.Decision, msgs []bus.Message) Outcome {
	if l.deps.Replies == nil || l.deps.Sender == nil {
		return Outcome{Decision: d, Err: "no reply generator configured"}
	}

	target, ok := findMessage(msgs, d.TargetMessageID)
	if !ok && len(msgs) > 0 {
		target = msgs[len(msgs)-1]
	}

	callCtx, cancel := l.abortableTimeout(ctx, l.opts.ReplyTimeout)
	defer cancel()

	segments, err := l.deps.Replies.Generate(callCtx, target, l.deps.Registry.Snapshot())
	if err != nil {
		return Outcome{Decision: d, Err: fmt.Sprintf("reply generation: %v", err)}
	}

	var sent int
	for _, seg := range segments {
		if err := l.deps.Sender.Send(callCtx, l.opts.ConversationID, seg); err != nil {
			return Outcome{Decision: d, Err: fmt.Sprintf("send after %d segments: %v", sent, err)}
		}
		sent++
	}
	return Outcome{Decision: d, Success: true,
		Display: fmt.Sprintf("replied with %d segments", sent)}
}

func (l *Loop) executePlugin(ctx context.Context, d planner.Decision, eligible map[string]*actions.ActionDescriptor) Outcome {
	desc, ok := eligible[d.Action]
	if !ok {
		// The planner coerces unknown names, so this only happens when
		// the registry mutated mid-cycle. Treat as a failed outcome.
		return Outcome{Decision: d, Err: "action no longer eligible"}
	}
	if desc.NewExecutor == nil {
		return Outcome{Decision: d, Err: "action has no executor"}
	}

	exec, err := desc.NewExecutor(d.Params)
	if err != nil {
		return Outcome{Decision: d, Err: fmt.Sprintf("build executor: %v", err)}
	}

	// Plugins observe Abort the same way planning and reply calls do.
	execCtx, cancel := l.abortable(ctx)
	defer cancel()

	res, err := exec.Execute(execCtx)
	if err != nil {
		return Outcome{Decision: d, Display: res.Display,
			Err: fmt.Sprintf("execute: %v", err)}
	}
	return Outcome{Decision: d, Success: res.Success, Display: res.Display}
}

// --- abort plumbing ---

// abortable derives a context that is cancelled with ErrAborted when the
// abort signal fires. The signal is polled at sub-second granularity.
func (l *Loop) abortable(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(parent)

	go func() {
		ticker := time.NewTicker(abortPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if l.aborted.Load() {
					cancelCause(ErrAborted)
					return
				}
			}
		}
	}()

	return ctx, func() { cancelCause(context.Canceled) }
}

// abortableTimeout combines the abort signal with a call timeout.
func (l *Loop) abortableTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancelTimeout := context.WithTimeout(parent, timeout)
	actx, cancelAbort := l.abortable(tctx)
	return actx, func() {
		cancelAbort()
		cancelTimeout()
	}
}

// --- helpers ---

func summarize(outcomes []Outcome) (replied, decided bool) {
	for _, o := range outcomes {
		if o.Decision.Action == actions.ActionReply && o.Success {
			replied = true
		}
		if !o.Decision.IsNoReply() {
			decided = true
		}
	}
	return replied, decided
}

func findMessage(msgs []bus.Message, id string) (bus.Message, bool) {
	if id == "" {
		return bus.Message{}, false
	}
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return bus.Message{}, false
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func normalizeInterest(interest, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	n := interest / threshold
	if n > 1 {
		n = 1
	}
	return n
}
