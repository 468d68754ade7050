// Package usage buffers invocation usage records and flushes them to a store
package usage

import (
	"context"
	"sync"
	"time"

	"claude-invocation/internal/metrics"
	"claude-invocation/internal/shared"

	"go.uber.org/zap"
)

type Store interface {
	SaveInvocations(ctx context.Context, records []*shared.InvocationRecord) error
}

// Recorder collects records into a bucket that is flushed once the flush
// interval has passed since the first buffered record, or as soon as the
// bucket is full. An interval of zero flushes every record synchronously,
// which suits hosts that freeze the process between invocations.
type Recorder struct {
	mu       sync.Mutex
	flushMu  sync.Mutex
	records  []*shared.InvocationRecord
	timer    *time.Timer
	inflight sync.WaitGroup
	store    Store
	log      *zap.SugaredLogger
	interval time.Duration
	max      int
}

func NewRecorder(store Store, log *zap.SugaredLogger, interval time.Duration) *Recorder {
	return &Recorder{
		store:    store,
		log:      log,
		interval: interval,
		max:      shared.UsageMaxBuffered,
	}
}

func (r *Recorder) Record(rec *shared.InvocationRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)

	if r.interval == 0 {
		r.mu.Unlock()
		r.Flush()
		return
	}

	// Case full bucket, flush right away
	if len(r.records) >= r.max {
		r.inflight.Add(1)
		r.mu.Unlock()
		go func() {
			defer r.inflight.Done()
			r.Flush()
		}()
		return
	}

	if r.timer == nil {
		r.inflight.Add(1)
		r.timer = time.AfterFunc(r.interval, func() {
			defer r.inflight.Done()
			r.Flush()
		})
	}
	r.mu.Unlock()
}

// Flush writes every buffered record. Failed batches are logged and dropped.
func (r *Recorder) Flush() {
	r.mu.Lock()
	batch := r.records
	r.records = nil
	if r.timer != nil {
		// A stopped timer never runs its callback, release its slot here
		if r.timer.Stop() {
			r.inflight.Done()
		}
		r.timer = nil
	}
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shared.UsageFlushTimeout)
	defer cancel()
	if err := r.store.SaveInvocations(ctx, batch); err != nil {
		r.log.Errorw("Failed to save invocation records", "error", err, "records", len(batch))
		metrics.UsageFlushes.WithLabelValues("error").Inc()
		metrics.ErrorCount.WithLabelValues("unknown", "save_invocations").Inc()
		return
	}
	metrics.UsageFlushes.WithLabelValues("success").Inc()
	r.log.Infow("Flushed usage bucket", "records", len(batch))
}

// Shutdown flushes what is buffered and waits for flushes already running,
// so the store can be closed once it returns.
func (r *Recorder) Shutdown() {
	r.log.Info("Shutting down usage recorder")
	r.Flush()
	r.inflight.Wait()
}
