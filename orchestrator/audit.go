package orchestrator

import (
	"context"

	"github.com/voyagerhq/concierge/logging"
)

// LogAuditor records safety violations to the structured log. Deployments
// with a dedicated audit sink substitute their own Auditor.
type LogAuditor struct {
	logger logging.Logger
}

// NewLogAuditor builds an auditor over the given logger.
func NewLogAuditor(logger logging.Logger) *LogAuditor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogAuditor{logger: logger}
}

// RecordViolation implements Auditor.
func (a *LogAuditor) RecordViolation(_ context.Context, userID, sessionID string, reasons []string) {
	a.logger.Warn("security.audit",
		"user_id", userID, "session_id", sessionID, "reasons", reasons)
}
