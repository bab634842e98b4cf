// Package metrics records usage counters for the prompt library. Counters are
// exported through the global OpenTelemetry meter provider and mirrored in
// process for the health endpoint. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/promptrium"

// Recorder tracks store mutations, copies and imports.
type Recorder struct {
	startTime time.Time

	mutations   metric.Int64Counter
	rejections  metric.Int64Counter
	copies      metric.Int64Counter
	imports     metric.Int64Counter
	persistErrs metric.Int64Counter

	mu         sync.Mutex
	byOp       map[string]int64
	rejected   atomic.Int64
	copiesOK   atomic.Int64
	copiesFail atomic.Int64
	importsOK  atomic.Int64
	importsBad atomic.Int64
	saveErrors atomic.Int64
}

// New creates a Recorder using the global meter provider. Instrument
// creation errors leave the corresponding OpenTelemetry counter unset;
// in-process counters keep working.
func New() *Recorder {
	meter := otel.Meter(meterName)
	r := &Recorder{
		startTime: time.Now(),
		byOp:      make(map[string]int64),
	}
	r.mutations, _ = meter.Int64Counter("promptrium.store.mutations",
		metric.WithDescription("Successful store mutations by operation"))
	r.rejections, _ = meter.Int64Counter("promptrium.store.validation_failures",
		metric.WithDescription("Mutations rejected by validation"))
	r.copies, _ = meter.Int64Counter("promptrium.clipboard.copies",
		metric.WithDescription("Clipboard copy attempts by outcome"))
	r.imports, _ = meter.Int64Counter("promptrium.transfer.imports",
		metric.WithDescription("Import attempts by outcome"))
	r.persistErrs, _ = meter.Int64Counter("promptrium.persist.errors",
		metric.WithDescription("Failed write-through saves"))
	return r
}

// Mutation records a successful store mutation.
func (r *Recorder) Mutation(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.byOp[op]++
	r.mu.Unlock()
	if r.mutations != nil {
		r.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

// ValidationFailed records a mutation rejected by validation.
func (r *Recorder) ValidationFailed(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.rejected.Add(1)
	if r.rejections != nil {
		r.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

// Copy records a clipboard copy outcome.
func (r *Recorder) Copy(ctx context.Context, ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.copiesOK.Add(1)
	} else {
		r.copiesFail.Add(1)
	}
	if r.copies != nil {
		r.copies.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
	}
}

// Import records an import outcome.
func (r *Recorder) Import(ctx context.Context, ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.importsOK.Add(1)
	} else {
		r.importsBad.Add(1)
	}
	if r.imports != nil {
		r.imports.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
	}
}

// PersistError records a failed write-through save.
func (r *Recorder) PersistError(ctx context.Context, key string) {
	if r == nil {
		return
	}
	r.saveErrors.Add(1)
	if r.persistErrs != nil {
		r.persistErrs.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
	}
}

// Snapshot is a point-in-time copy of the in-process counters.
type Snapshot struct {
	Mutations          map[string]int64 `json:"mutations"`
	ValidationFailures int64            `json:"validation_failures"`
	CopiesSucceeded    int64            `json:"copies_succeeded"`
	CopiesFailed       int64            `json:"copies_failed"`
	ImportsSucceeded   int64            `json:"imports_succeeded"`
	ImportsRejected    int64            `json:"imports_rejected"`
	PersistErrors      int64            `json:"persist_errors"`
	UptimeSeconds      int64            `json:"uptime_seconds"`
}

// Snapshot returns the current counters. A nil Recorder yields a zero Snapshot.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{Mutations: map[string]int64{}}
	}
	r.mu.Lock()
	ops := make(map[string]int64, len(r.byOp))
	for k, v := range r.byOp {
		ops[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		Mutations:          ops,
		ValidationFailures: r.rejected.Load(),
		CopiesSucceeded:    r.copiesOK.Load(),
		CopiesFailed:       r.copiesFail.Load(),
		ImportsSucceeded:   r.importsOK.Load(),
		ImportsRejected:    r.importsBad.Load(),
		PersistErrors:      r.saveErrors.Load(),
		UptimeSeconds:      int64(time.Since(r.startTime).Seconds()),
	}
}
