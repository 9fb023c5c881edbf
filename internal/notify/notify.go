// Package notify is the fire-and-forget mail dispatch boundary. The
// directory core calls it after selected state transitions and ignores
// the result; delivery is somebody else's problem.
package notify

import (
	"context"
	"time"

	"cleanops.io/internal/obs"
)

// LogMailer records outbound notifications as structured log lines.
// It stands in for the real mail transport in development and tests.
type LogMailer struct{}

// NewLogMailer returns a LogMailer.
func NewLogMailer() *LogMailer { return &LogMailer{} }

// Welcome announces a freshly created account.
func (m *LogMailer) Welcome(ctx context.Context, email string) error {
	m.emit("welcome", email)
	return nil
}

// Restored announces a restored account, which still needs an explicit
// activation before the owner can sign in.
func (m *LogMailer) Restored(ctx context.Context, email string) error {
	m.emit("restored", email)
	return nil
}

func (m *LogMailer) emit(kind, email string) {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "notify",
		"event": kind,
		"to":    email,
	})
}
