package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalkeep/internal/config"
	"signalkeep/internal/ingest"
	"signalkeep/internal/store"
)

func testWorker(capacity int) *Worker {
	cfg := config.PipelineConfig{FlushIntervalSecs: 2, FlushBatchSize: 500, SampleReservoirSize: 5}
	alertCh := make(chan store.NewFingerprint, 16)
	return NewWorker(capacity, nil, cfg, 1000, alertCh, nil)
}

func TestTryEnqueueRespectsCapacity(t *testing.T) {
	w := testWorker(2)

	assert.True(t, w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "a"}))
	assert.True(t, w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "b"}))
	assert.False(t, w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "c"}))
}

func TestDrainRemainingBuffersQueuedItems(t *testing.T) {
	w := testWorker(4)

	w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "x", Event: ingest.Event{Timestamp: 1}})
	w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "x", Event: ingest.Event{Timestamp: 2}})
	w.TryEnqueue(ingest.ProcessedEvent{Fingerprint: "y", Event: ingest.Event{Timestamp: 3}})

	w.drainRemaining()

	assert.Len(t, w.buffer, 3)
	assert.True(t, w.buffer[0].FirstSeenByWorker)
	assert.False(t, w.buffer[1].FirstSeenByWorker)
	assert.True(t, w.buffer[2].FirstSeenByWorker)
}
