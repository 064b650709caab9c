package alertpipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"signalkeep/internal/metrics"
	"signalkeep/internal/store"
)

// Rule is a statically configured new-issue alert rule. There is no rule
// CRUD or threshold/spike rule type here — this evaluator fires on a
// newly-seen fingerprint matching an environment/source filter pair.
type Rule struct {
	ID          string
	Name        string
	Environment string // empty matches any environment
	Source      string // empty matches any source
}

func (r Rule) matches(environment, source string) bool {
	if r.Environment != "" && r.Environment != environment {
		return false
	}
	if r.Source != "" && r.Source != source {
		return false
	}
	return true
}

// CooldownStore is the durable gate behind each rule firing.
type CooldownStore interface {
	ShouldFireAlert(ctx context.Context, projectID, ruleID, fingerprint string, now, cooldownMillis int64) (bool, error)
}

// Evaluator consumes NewFingerprintEvents and fires matching rules. It never
// blocks the error pipeline: it owns its own receive goroutine fed by a
// bounded channel, and a full channel simply drops the notification.
type Evaluator struct {
	rules          []Rule
	cooldown       CooldownStore
	sender         ChannelSender
	cooldownMillis int64
	logger         *zap.Logger
}

func New(rules []Rule, cooldown CooldownStore, sender ChannelSender, cooldownSecs int, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LoggingSender{}
	}
	return &Evaluator{
		rules:          rules,
		cooldown:       cooldown,
		sender:         sender,
		cooldownMillis: int64(cooldownSecs) * 1000,
		logger:         logger,
	}
}

// Run drains ch until it is closed, evaluating every new-fingerprint event
// against the configured rule set.
func (e *Evaluator) Run(ctx context.Context, ch <-chan store.NewFingerprint) {
	for {
		select {
		case nf, ok := <-ch:
			if !ok {
				return
			}
			e.evaluate(ctx, nf)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Evaluator) evaluate(ctx context.Context, nf store.NewFingerprint) {
	ev := nf.Event.Event
	now := time.Now().UnixMilli()

	for _, rule := range e.rules {
		if !rule.matches(ev.Environment, ev.Source) {
			continue
		}

		fire, err := e.cooldown.ShouldFireAlert(ctx, nf.ProjectID, rule.ID, nf.Fingerprint, now, e.cooldownMillis)
		if err != nil {
			e.logger.Warn("alert cooldown check failed", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !fire {
			continue
		}

		req := DispatchRequest{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			ProjectID:   nf.ProjectID,
			Fingerprint: nf.Fingerprint,
			Message: fmt.Sprintf("New error in %s (%s): [%s] %s - %s",
				ev.Release, ev.Environment, ev.ErrorType, ev.Message, nf.Fingerprint),
		}
		e.sender.Send(req)
		metrics.AlertsDispatchedTotal.WithLabelValues(rule.Name).Inc()
	}
}
