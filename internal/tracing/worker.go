package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"signalkeep/internal/config"
	"signalkeep/internal/metrics"
)

// TraceStore is the durable-storage facade this worker flushes through.
type TraceStore interface {
	WriteTraceBatch(ctx context.Context, items []ProcessedTrace) error
}

// Worker is the LLM-trace pipeline: drains the trace queue, batches, and
// commits on count, time, or shutdown, mirroring the error worker's
// select-based flush loop.
type Worker struct {
	queue  chan ProcessedTrace
	store  TraceStore
	cfg    config.LLMTracingConfig
	logger *zap.Logger

	buffer []ProcessedTrace
}

func NewWorker(capacity int, st TraceStore, cfg config.LLMTracingConfig, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  make(chan ProcessedTrace, capacity),
		store:  st,
		cfg:    cfg,
		logger: logger,
	}
}

// Usage reports the trace queue's current fill fraction.
func (w *Worker) Usage() float64 {
	return float64(len(w.queue)) / float64(cap(w.queue))
}

func (w *Worker) TryEnqueue(pt ProcessedTrace) bool {
	select {
	case w.queue <- pt:
		metrics.QueueDepth.WithLabelValues(pipelineLabel).Set(float64(len(w.queue)))
		return true
	default:
		return false
	}
}

func (w *Worker) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.FlushIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case pt, ok := <-w.queue:
			if !ok {
				w.flush(context.Background())
				return
			}
			w.buffer = append(w.buffer, pt)
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

func (w *Worker) drainRemaining() {
	for {
		select {
		case pt, ok := <-w.queue:
			if !ok {
				return
			}
			w.buffer = append(w.buffer, pt)
		default:
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}
	batch := w.buffer
	w.buffer = nil

	start := time.Now()
	err := w.store.WriteTraceBatch(ctx, batch)
	if err != nil {
		err = w.store.WriteTraceBatch(ctx, batch)
	}
	metrics.FlushDuration.WithLabelValues(pipelineLabel).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FlushErrorsTotal.WithLabelValues(pipelineLabel).Inc()
		w.logger.Warn("trace pipeline flush failed, batch dropped",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		return
	}

	metrics.FlushBatchSize.WithLabelValues(pipelineLabel).Observe(float64(len(batch)))
}
