package journal

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
)

// Recover replays every committed entry with sequence >= sinceSequence
// through apply, in order.
//
// apply is expected to durably (re-)apply an entry's forward payload
// to the block store; it must be idempotent, since an entry may have
// already been fully applied before a crash and is replayed again
// here regardless. Entries flagged FlagUncompleted are already
// resolved (rolled back by an abort or an earlier recovery, or marked
// after their block-store effects failed) and are skipped.
func (j *Journal) Recover(sinceSequence uint64, apply func(Entry) error) (int, error) {
	entries, err := j.ReadSince(sinceSequence)
	if err != nil {
		return 0, err
	}

	replayed := 0
	var prevSeq uint64
	for i, e := range entries {
		if i > 0 && e.Sequence <= prevSeq {
			return replayed, ErrSequenceGap
		}
		prevSeq = e.Sequence

		if e.Flags.Has(FlagUncompleted) {
			continue
		}
		if err := apply(e); err != nil {
			return replayed, fmt.Errorf("journal: recover: sequence %d: %w", e.Sequence, err)
		}
		replayed++
		metrics.JournalEntriesReplayedTotal.Inc()
	}
	return replayed, nil
}

// Has reports whether flags includes bit.
func (f EntryFlags) Has(bit EntryFlags) bool { return f&bit != 0 }
