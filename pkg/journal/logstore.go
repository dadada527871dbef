package journal

import (
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// logStoreProjection mirrors committed entries into a raft.LogStore
// (backed by raft-boltdb, grounded on pkg/manager/manager.go's
// raftboltdb.NewBoltStore wiring) so that an optional higher layer
// (pkg/replication) can expose this journal's history through
// raft.FSM.Apply without the core ever running Raft consensus itself.
//
// The projection is a derived artifact: it is rebuilt by replaying
// the physical journal file and is never consulted by recovery.go.
type logStoreProjection struct {
	store *raftboltdb.BoltStore
}

func openLogStoreProjection(path string) (*logStoreProjection, error) {
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, err
	}
	return &logStoreProjection{store: store}, nil
}

func (p *logStoreProjection) Close() error {
	return p.store.Close()
}

// append stores e as a raft.Log with Index set to its sequence
// number, so pkg/replication can hand it straight to a raft.FSM.Apply
// call.
func (p *logStoreProjection) append(e Entry) error {
	buf, err := encode(e)
	if err != nil {
		return err
	}
	log := &raft.Log{
		Index: e.Sequence,
		Term:  1,
		Type:  raft.LogCommand,
		Data:  buf,
	}
	return p.store.StoreLog(log)
}

// LogStore exposes the journal's replication projection as a
// raft.LogStore for pkg/replication. It returns (nil, false) when the
// projection was not enabled at Open time.
func (j *Journal) LogStore() (raft.LogStore, bool) {
	if j.proj == nil {
		return nil, false
	}
	return j.proj.store, true
}
