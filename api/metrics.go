package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// mutationMetrics accumulates per-request timing and outcome for one inbound
// mutation message, logged as structured fields once the request is decided.
type mutationMetrics struct {
	logger       *log.Logger
	op           string
	userID       string
	start        time.Time
	outcome      string
	conflictType domain.ConflictType
	errMsg       string
}

func newMutationMetrics(logger *log.Logger, op, userID string) *mutationMetrics {
	return &mutationMetrics{
		logger: logger,
		op:     op,
		userID: userID,
		start:  time.Now(),
	}
}

func (m *mutationMetrics) SetOutcome(outcome string) {
	if outcome == "" {
		return
	}
	m.outcome = outcome
}

func (m *mutationMetrics) SetConflict(ct domain.ConflictType) {
	m.outcome = "conflict"
	m.conflictType = ct
}

func (m *mutationMetrics) SetError(err error) {
	m.outcome = "error"
	if err != nil {
		m.errMsg = err.Error()
	}
}

func (m *mutationMetrics) Log() {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"op":       m.op,
		"user":     m.userID,
		"total_ms": durationToMillis(time.Since(m.start)),
		"outcome":  m.outcome,
	}
	if m.conflictType != "" {
		fields["conflict_type"] = string(m.conflictType)
	}
	if m.errMsg != "" {
		fields["error"] = m.errMsg
	}

	m.logger.WithFields(fields).Info("board.mutation.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
