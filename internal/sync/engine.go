// Package sync drains the pending-operation queue against the clinic backend.
//
// One Engine owns one Store. At most one pass runs at a time; producers keep
// enqueueing while a pass is in flight and their records ride the next pass.
package sync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmeireles/writeback/internal/deadletter"
	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/metrics"
	"github.com/dmeireles/writeback/internal/models"
	"github.com/dmeireles/writeback/internal/store"
	"github.com/dmeireles/writeback/internal/tracing"
)

// Status reports what the engine is doing right now.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
)

// DefaultMaxAttempts is the retry budget per operation. A record that fails
// this many replays is dropped for good.
const DefaultMaxAttempts = 5

// Executor replays a single operation against the backend. Implementations
// must not retry internally; the engine owns the retry budget. Any 2xx
// status reports success=true. Transport-level failures return an error with
// statusCode 0.
type Executor interface {
	Execute(ctx context.Context, method, endpoint string, payload []byte) (success bool, statusCode int, err error)
}

// DeadLetterSink archives operations the engine drops after exhausting their
// retry budget.
type DeadLetterSink interface {
	Archive(ctx context.Context, entry deadletter.Entry) error
}

// Config tunes an Engine. The zero value (or nil) selects defaults: five
// attempts, no dead-letter archive, a component logger.
type Config struct {
	MaxAttempts int
	DeadLetter  DeadLetterSink
	Logger      *zerolog.Logger
}

// Request describes one write to stage for replay. Zero Priority selects the
// default; EntityID and EntityType are optional correlation hints.
type Request struct {
	Kind       models.Kind
	Method     string
	Endpoint   string
	Payload    json.RawMessage
	Priority   int
	EntityID   string
	EntityType string
}

// pass is the one-shot completion broadcast for a single sync run. done is
// closed atomically with the Syncing to Idle transition; success must be set
// before the close.
type pass struct {
	done    chan struct{}
	success bool
}

// subscribe schedules cb to fire with the pass result once done closes.
// Callers must hold the engine mutex.
func (p *pass) subscribe(cb func(success bool)) {
	go func() {
		<-p.done
		cb(p.success)
	}()
}

// Engine replays staged operations in priority-then-FIFO order.
type Engine struct {
	store       store.Store
	executor    Executor
	maxAttempts int
	deadLetter  DeadLetterSink
	logger      zerolog.Logger

	mu       sync.Mutex
	current  *pass // non-nil while a pass is running
	lastSync time.Time
}

// New creates an Engine draining st through executor. cfg may be nil.
func New(st store.Store, executor Executor, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := logging.Component("engine")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Engine{
		store:       st,
		executor:    executor,
		maxAttempts: maxAttempts,
		deadLetter:  cfg.DeadLetter,
		logger:      logger,
	}
}

// Enqueue stages one operation for replay and returns its id. The record is
// durable once Enqueue returns nil. A store failure is surfaced to the
// caller: the write was not persisted and the producer decides how to react.
func (e *Engine) Enqueue(ctx context.Context, req Request) (string, error) {
	op, err := models.New(req.Kind, req.Method, req.Endpoint, req.Payload)
	if err != nil {
		return "", err
	}
	if req.Priority != 0 {
		op.Priority = req.Priority
	}
	op.EntityID = req.EntityID
	op.EntityType = req.EntityType

	if err := e.store.Append(ctx, op); err != nil {
		metrics.StoreErrorsTotal.Inc()
		return "", err
	}

	metrics.EnqueuedTotal.Inc()
	metrics.QueueDepth.Inc()
	e.logger.Debug().
		Str("id", op.ID).
		Str("kind", string(op.Kind)).
		Str("method", op.Method).
		Str("endpoint", op.Endpoint).
		Int("priority", op.Priority).
		Msg("operation enqueued")
	return op.ID, nil
}

// Synchronize drains the queue once and reports whether it ended empty.
//
// If a pass is already running, the callbacks are subscribed to that pass
// and false is returned immediately; no second pass starts. Otherwise this
// call runs the pass to completion and returns its result. Callbacks always
// fire with the result of the pass they subscribed to, winner's included.
func (e *Engine) Synchronize(ctx context.Context, callbacks ...func(success bool)) bool {
	e.mu.Lock()
	if e.current != nil {
		for _, cb := range callbacks {
			e.current.subscribe(cb)
		}
		e.mu.Unlock()
		return false
	}
	p := &pass{done: make(chan struct{})}
	for _, cb := range callbacks {
		p.subscribe(cb)
	}
	e.current = p
	e.mu.Unlock()

	success := e.runPass(ctx)

	e.mu.Lock()
	p.success = success
	e.lastSync = time.Now()
	e.current = nil
	close(p.done)
	e.mu.Unlock()

	return success
}

// Status returns Idle or Syncing.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return StatusSyncing
	}
	return StatusIdle
}

// LastSync returns when the most recent pass finished, zero before the first.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Depth returns the number of operations currently persisted.
func (e *Engine) Depth(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// runPass executes one full drain over a snapshot of the queue. Records
// enqueued after the snapshot ride the next pass.
func (e *Engine) runPass(ctx context.Context) bool {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "sync.pass")
	defer span.End()
	defer func() {
		metrics.SyncPassDuration.Observe(time.Since(start).Seconds())
	}()

	ops, err := e.store.List(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		metrics.SyncPassesTotal.WithLabelValues("store_error").Inc()
		tracing.SetSpanError(ctx, err)
		e.logger.Error().Err(err).Msg("failed to snapshot queue")
		return false
	}

	// Replay order: priority ascending. The snapshot is already in enqueue
	// order, so the stable sort keeps equal priorities FIFO.
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Priority < ops[j].Priority
	})

	span.SetAttributes(attribute.Int("queue.depth", len(ops)))
	e.logger.Debug().Int("pending", len(ops)).Msg("sync pass started")

	for _, op := range ops {
		select {
		case <-ctx.Done():
			// Shutdown mid-pass: untouched records keep their attempt
			// counts and replay on the next pass.
			metrics.SyncPassesTotal.WithLabelValues("partial").Inc()
			e.logger.Warn().Err(ctx.Err()).Msg("sync pass aborted")
			return false
		default:
		}
		e.replay(ctx, op)
	}

	// Success means nothing was left behind. Re-list instead of trusting
	// per-record bookkeeping: records enqueued mid-pass also count.
	remaining, err := e.store.List(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		metrics.SyncPassesTotal.WithLabelValues("store_error").Inc()
		tracing.SetSpanError(ctx, err)
		e.logger.Error().Err(err).Msg("failed to verify queue after pass")
		return false
	}
	metrics.QueueDepth.Set(float64(len(remaining)))

	success := len(remaining) == 0
	if success {
		metrics.SyncPassesTotal.WithLabelValues("success").Inc()
	} else {
		metrics.SyncPassesTotal.WithLabelValues("partial").Inc()
	}
	e.logger.Info().
		Bool("success", success).
		Int("replayed", len(ops)).
		Int("remaining", len(remaining)).
		Dur("took", time.Since(start)).
		Msg("sync pass finished")
	return success
}

// replay dispatches one record and persists the outcome. Failures here never
// propagate: the record either leaves the queue or stays for the next pass.
func (e *Engine) replay(ctx context.Context, op *models.Operation) {
	ctx, span := tracing.StartSpan(ctx, "sync.replay",
		attribute.String("operation.id", op.ID),
		attribute.String("operation.kind", string(op.Kind)),
		attribute.String("operation.endpoint", op.Endpoint),
		attribute.Int("operation.attempts", op.Attempts),
	)
	defer span.End()

	// Records at or over the budget are dropped without another dispatch.
	// Normally exhaustion is caught right after the failing attempt below;
	// this guard covers records persisted under a larger budget.
	if op.Attempts >= e.maxAttempts {
		e.drop(ctx, op, 0, "", "attempt count at retry budget")
		return
	}

	success, status, err := e.executor.Execute(ctx, op.Method, op.Endpoint, op.Payload)
	if err == nil && success {
		metrics.ReplaysTotal.WithLabelValues("success").Inc()
		if rErr := e.store.Remove(ctx, op.ID); rErr != nil {
			// The record stays and replays next pass; the backend must
			// tolerate the duplicate. Same-day check-ins dedupe server-side.
			metrics.StoreErrorsTotal.Inc()
			e.logger.Error().Err(rErr).Str("id", op.ID).Msg("failed to remove replayed operation")
			return
		}
		e.logger.Debug().Str("id", op.ID).Int("status", status).Msg("operation replayed")
		return
	}

	metrics.ReplaysTotal.WithLabelValues("failure").Inc()
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
		tracing.SetSpanError(ctx, err)
	}

	bumped := op.WithIncrementedAttempts()
	if bumped.Attempts >= e.maxAttempts {
		e.drop(ctx, bumped, status, lastErr, "retry budget exhausted")
		return
	}
	if rErr := e.store.Replace(ctx, bumped); rErr != nil {
		// Attempt counter not persisted; the record retries with its old
		// count, which only errs on the side of extra attempts.
		metrics.StoreErrorsTotal.Inc()
		e.logger.Error().Err(rErr).Str("id", op.ID).Msg("failed to persist attempt counter")
		return
	}
	e.logger.Warn().
		Str("id", op.ID).
		Str("endpoint", op.Endpoint).
		Int("status", status).
		Str("error", lastErr).
		Int("attempts", bumped.Attempts).
		Int("max_attempts", e.maxAttempts).
		Msg("replay failed, will retry")
}

// drop permanently removes op from the queue, archiving it first when a
// dead-letter sink is configured. This is the deliberate data-loss boundary:
// the host application learns about it through the log, the metric and the
// archive, never through an error.
func (e *Engine) drop(ctx context.Context, op *models.Operation, status int, lastErr, reason string) {
	metrics.DroppedTotal.Inc()
	tracing.AddSpanEvent(ctx, "operation dropped",
		attribute.String("operation.id", op.ID),
		attribute.String("reason", reason),
	)

	if e.deadLetter != nil {
		entry := deadletter.NewEntry(op, status, lastErr, reason)
		if aErr := e.deadLetter.Archive(ctx, entry); aErr != nil {
			e.logger.Error().Err(aErr).Str("id", op.ID).Msg("failed to archive dropped operation")
		}
	}

	if rErr := e.store.Remove(ctx, op.ID); rErr != nil {
		metrics.StoreErrorsTotal.Inc()
		e.logger.Error().Err(rErr).Str("id", op.ID).Msg("failed to remove exhausted operation")
		return
	}

	e.logger.Error().
		Str("code", string(apperrors.ErrRetryExhausted)).
		Str("id", op.ID).
		Str("kind", string(op.Kind)).
		Str("endpoint", op.Endpoint).
		Int("attempts", op.Attempts).
		Str("reason", reason).
		Msg("operation dropped")
}
