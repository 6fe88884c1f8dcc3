// Package audit appends account-security events to the auth audit trail.
// Recording is best-effort: a failed insert is logged and never fails the
// authentication path it observes.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskora/taskora/backend/internal/clock"
)

// Audit actions
const (
	ActionLogin          = "LOGIN"
	ActionTokenValidate  = "TOKEN_VALIDATE"
	ActionLockout        = "LOCKOUT"
	ActionOTPConfirm     = "OTP_CONFIRM"
	ActionPasswordReset  = "PASSWORD_RESET"
	ActionPasswordChange = "PASSWORD_CHANGE"
)

// Audit outcomes
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)

// Event is a single audit trail entry.
type Event struct {
	Actor      string    `db:"actor"`
	Action     string    `db:"action"`
	Outcome    string    `db:"outcome"`
	Detail     string    `db:"detail"`
	IPAddress  string    `db:"ip_address"`
	OccurredAt time.Time `db:"occurred_at"`
}

// Recorder appends events to the audit trail.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// SQLRecorder implements Recorder on top of PostgreSQL via sqlx.
type SQLRecorder struct {
	db     *sqlx.DB
	clock  clock.Clock
	logger *slog.Logger
}

// NewSQLRecorder creates a new SQLRecorder instance
func NewSQLRecorder(db *sqlx.DB, clk clock.Clock, logger *slog.Logger) *SQLRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRecorder{db: db, clock: clk, logger: logger}
}

// Record inserts the event. Errors are logged, not returned.
func (r *SQLRecorder) Record(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.clock.Now()
	}

	query := `
		INSERT INTO auth_audit_log (actor, action, outcome, detail, ip_address, occurred_at)
		VALUES (:actor, :action, :outcome, :detail, :ip_address, :occurred_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		r.logger.Warn("failed to record audit event",
			"action", event.Action,
			"outcome", event.Outcome,
			"error", err,
		)
	}
}

// Nop is a Recorder that discards events. Intended for tests.
type Nop struct{}

// Record discards the event.
func (Nop) Record(ctx context.Context, event Event) {}
