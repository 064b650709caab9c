package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"signalkeep/internal/config"
	"signalkeep/internal/ingest"
	"signalkeep/internal/metrics"
	"signalkeep/internal/store"
)

const pipelineLabel = "error"

// Worker is the C5 error pipeline: a single goroutine owns an Aggregator and
// a flush buffer fed by a bounded, non-blocking queue.
type Worker struct {
	queue   chan ingest.ProcessedEvent
	store   *store.Store
	agg     *Aggregator
	cfg     config.PipelineConfig
	alertCh chan<- store.NewFingerprint
	logger  *zap.Logger

	buffer []store.BufferedErrorEvent
}

func NewWorker(capacity int, st *store.Store, cfg config.PipelineConfig, aggCapacity int, alertCh chan<- store.NewFingerprint, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   make(chan ingest.ProcessedEvent, capacity),
		store:   st,
		agg:     NewAggregator(aggCapacity),
		cfg:     cfg,
		alertCh: alertCh,
		logger:  logger,
	}
}

// Usage reports the error queue's current fill fraction, for the health
// endpoint's buffer_usage field.
func (w *Worker) Usage() float64 {
	return float64(len(w.queue)) / float64(cap(w.queue))
}

// TryEnqueue is the non-blocking hand-off used by the HTTP handlers. It
// never blocks: a full queue simply reports false, and the caller is
// responsible for backpressure (ack-and-drop, not retry).
func (w *Worker) TryEnqueue(pe ingest.ProcessedEvent) bool {
	select {
	case w.queue <- pe:
		metrics.QueueDepth.WithLabelValues(pipelineLabel).Set(float64(len(w.queue)))
		return true
	default:
		return false
	}
}

// Run drains the queue until it is closed or ctx is cancelled, flushing on
// count threshold, time interval, or shutdown — whichever comes first, via
// a single select loop with no polling.
func (w *Worker) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.FlushIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case pe, ok := <-w.queue:
			if !ok {
				w.flush(context.Background())
				return
			}
			isNew := w.agg.Increment(pe.Fingerprint, pe.Event.Timestamp)
			w.buffer = append(w.buffer, store.BufferedErrorEvent{PE: pe, FirstSeenByWorker: isNew})
			metrics.QueueDepth.WithLabelValues(pipelineLabel).Set(float64(len(w.queue)))

			if len(w.buffer) >= w.cfg.FlushBatchSize {
				w.flush(ctx)
			}

		case <-ticker.C:
			if len(w.buffer) > 0 {
				w.flush(ctx)
			}

		case <-ctx.Done():
			w.drainRemaining()
			w.flush(context.Background())
			return
		}
	}
}

// drainRemaining empties whatever is already sitting in the queue without
// blocking, so a shutdown flush captures it instead of losing it.
func (w *Worker) drainRemaining() {
	for {
		select {
		case pe, ok := <-w.queue:
			if !ok {
				return
			}
			isNew := w.agg.Increment(pe.Fingerprint, pe.Event.Timestamp)
			w.buffer = append(w.buffer, store.BufferedErrorEvent{PE: pe, FirstSeenByWorker: isNew})
		default:
			return
		}
	}
}

// flush commits the current buffer, retrying once on failure before
// dropping it with a warning log. Durability here is best-effort, not
// guaranteed. New fingerprints are fanned out to the alert evaluator
// non-blocking.
func (w *Worker) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}
	batch := w.buffer
	w.buffer = nil

	timer := prometheusTimer()
	newFPs, err := w.store.WriteErrorBatch(ctx, batch, w.cfg.SampleReservoirSize)
	if err != nil {
		newFPs, err = w.store.WriteErrorBatch(ctx, batch, w.cfg.SampleReservoirSize)
	}
	timer.observeDuration()

	if err != nil {
		metrics.FlushErrorsTotal.WithLabelValues(pipelineLabel).Inc()
		w.logger.Warn("error pipeline flush failed, batch dropped",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		return
	}

	metrics.FlushBatchSize.WithLabelValues(pipelineLabel).Observe(float64(len(batch)))

	for _, nf := range newFPs {
		select {
		case w.alertCh <- nf:
		default:
			w.logger.Warn("alert channel full, dropping new-fingerprint event",
				zap.String("project_id", nf.ProjectID), zap.String("fingerprint", nf.Fingerprint))
		}
	}
}

type flushTimer struct {
	start time.Time
}

func prometheusTimer() flushTimer {
	return flushTimer{start: time.Now()}
}

func (t flushTimer) observeDuration() {
	metrics.FlushDuration.WithLabelValues(pipelineLabel).Observe(time.Since(t.start).Seconds())
}
