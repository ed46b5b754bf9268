package transcript

import (
	"context"
	"time"
)

// Roles a turn can carry. RoleSummary is synthetic: it is produced by the
// compactor, never by a caller.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSummary   = "summary"
)

// Turn is one exchange unit in a session. Turns are immutable once written.
type Turn struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the durable, per-session, timestamp-ordered log of turns.
//
// Append must never lose turns already written, even when a later append in
// the same session fails. LoadAll and LoadTail return an empty slice (not an
// error) for an unknown session.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	LoadAll(ctx context.Context, sessionID string) ([]Turn, error)
	LoadTail(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Close() error
}
