package alertpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalkeep/internal/ingest"
	"signalkeep/internal/store"
)

type fakeCooldownStore struct {
	fire    bool
	err     error
	calls   int
	lastKey string
}

func (f *fakeCooldownStore) ShouldFireAlert(ctx context.Context, projectID, ruleID, fingerprint string, now, cooldownMillis int64) (bool, error) {
	f.calls++
	f.lastKey = projectID + "/" + ruleID + "/" + fingerprint
	return f.fire, f.err
}

type recordingSender struct {
	reqs []DispatchRequest
}

func (r *recordingSender) Send(req DispatchRequest) {
	r.reqs = append(r.reqs, req)
}

func newFingerprintEvent(environment, source string) store.NewFingerprint {
	return store.NewFingerprint{
		ProjectID:   "default",
		Fingerprint: "abc123",
		Event: ingest.ProcessedEvent{
			Event: ingest.Event{
				Environment: environment,
				Source:      source,
				ErrorType:   "TypeError",
				Message:     "boom",
				Release:     "1.0.0",
			},
			Fingerprint: "abc123",
			ProjectID:   "default",
		},
	}
}

func TestEvaluateFiresMatchingRule(t *testing.T) {
	cooldown := &fakeCooldownStore{fire: true}
	sender := &recordingSender{}
	eval := New([]Rule{{ID: "r1", Name: "new-issue-prod", Environment: "prod"}}, cooldown, sender, 300, nil)

	eval.evaluate(context.Background(), newFingerprintEvent("prod", "api"))

	require.Len(t, sender.reqs, 1)
	assert.Equal(t, "r1", sender.reqs[0].RuleID)
	assert.Equal(t, 1, cooldown.calls)
}

func TestEvaluateSkipsNonMatchingEnvironment(t *testing.T) {
	cooldown := &fakeCooldownStore{fire: true}
	sender := &recordingSender{}
	eval := New([]Rule{{ID: "r1", Name: "new-issue-prod", Environment: "prod"}}, cooldown, sender, 300, nil)

	eval.evaluate(context.Background(), newFingerprintEvent("staging", "api"))

	assert.Empty(t, sender.reqs)
	assert.Equal(t, 0, cooldown.calls)
}

func TestEvaluateSkipsOnCooldown(t *testing.T) {
	cooldown := &fakeCooldownStore{fire: false}
	sender := &recordingSender{}
	eval := New([]Rule{{ID: "r1", Name: "any"}}, cooldown, sender, 300, nil)

	eval.evaluate(context.Background(), newFingerprintEvent("prod", "api"))

	assert.Empty(t, sender.reqs)
	assert.Equal(t, 1, cooldown.calls)
}
