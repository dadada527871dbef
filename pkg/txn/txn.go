package txn

import (
	"fmt"
	"sync"

	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// Mode is a transaction's access mode.
type Mode uint8

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

func (m Mode) String() string {
	if m == ModeReadOnly {
		return "read_only"
	}
	return "read_write"
}

// ParseMode parses the wire string form used by txn_begin.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "read_only":
		return ModeReadOnly, nil
	case "read_write":
		return ModeReadWrite, nil
	default:
		return 0, fmt.Errorf("txn: unknown mode %q", s)
	}
}

// State is a transaction's lifecycle state: ACTIVE -> (COMMITTED | ABORTED).
type State uint8

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// completedOp records one operation performed during a transaction:
// its journal sequence (pending until commit or abort resolves it),
// and enough to reverse it on abort.
type completedOp struct {
	sequence      uint64
	opType        journal.OpType
	affectedBlock uint64
	inverse       []byte
	irreversible  bool
}

// Txn is a single transaction handle. After it leaves
// StateActive it is unusable; further calls fail with
// ERR_TXN_NOT_ACTIVE or ERR_TXN_ALREADY_COMMITTED.
type Txn struct {
	id   string
	mode Mode

	mu    sync.Mutex
	state State
	ops   []completedOp
}

// ID returns the transaction's opaque identifier.
func (t *Txn) ID() string { return t.id }

// Mode returns the transaction's access mode.
func (t *Txn) Mode() Mode { return t.mode }

// State returns the transaction's current lifecycle state.
func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Txn) record(sequence uint64, opType journal.OpType, affectedBlock uint64, inverse []byte, irreversible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, completedOp{sequence, opType, affectedBlock, inverse, irreversible})
}
