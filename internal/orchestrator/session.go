package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/pairlink/core/internal/protocol"
	"github.com/pairlink/core/internal/registry"
)

// session is one entry in the active ownership table. The socket handle
// is exclusively owned by the orchestrator for the lifetime of the
// connection attempt; once the session reaches a terminal state only
// the registry record and the on-disk credential file survive.
//
// Mutable fields are guarded by the orchestrator mutex.
type session struct {
	id        string
	mode      registry.Mode
	phone     string
	createdAt time.Time
	credDir   string
	cancel    context.CancelFunc

	socket     protocol.Socket
	status     registry.Status
	attempts   int
	challenged bool
	connected  bool
	released   bool

	resultOnce sync.Once
	result     chan outcome
}

// outcome is what the original creation request is waiting for: the
// first challenge (QR), the pairing code, or a terminal error.
type outcome struct {
	challenge string
	code      string
	err       error
}

// deliver resolves the pending creation request exactly once. Later
// failures are recorded in the registry and published to the sink, not
// re-surfaced here.
func (s *session) deliver(out outcome) {
	s.resultOnce.Do(func() { s.result <- out })
}

// ActiveInfo is a read-only projection of an active table entry.
type ActiveInfo struct {
	ID        string          `json:"id"`
	Mode      registry.Mode   `json:"mode"`
	Status    registry.Status `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	Connected bool            `json:"connected"`
}
