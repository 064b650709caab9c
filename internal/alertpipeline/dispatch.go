// Package alertpipeline implements the alert evaluator: new-fingerprint
// rule matching with per-rule+fingerprint cooldown, and a boundary interface
// to the channel sender that actually delivers notifications.
package alertpipeline

// DispatchRequest is what the evaluator hands to the channel sender on a
// rule firing. Assembling and delivering the actual Slack/webhook/SMTP
// message is left to an external collaborator, not built here.
type DispatchRequest struct {
	RuleID      string
	RuleName    string
	ProjectID   string
	Fingerprint string
	Message     string
}

// ChannelSender delivers a DispatchRequest to whatever channels a rule is
// configured with. The evaluator never waits on it: Send must not block
// the caller for any meaningful duration.
type ChannelSender interface {
	Send(DispatchRequest)
}

// LoggingSender is the default ChannelSender: it logs the dispatch and does
// nothing else. Real transport (Slack/webhook/SMTP) is out of scope.
type LoggingSender struct {
	Log func(DispatchRequest)
}

func (s LoggingSender) Send(req DispatchRequest) {
	if s.Log != nil {
		s.Log(req)
	}
}
