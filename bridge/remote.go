package bridge

import (
	"context"
)

// the contract the bridge consumes from the remote sync service.
// the bridge is protocol-agnostic over whatever the implementation
// speaks on the wire. `WebsocketRemote` in transport.go is the
// production implementation; tests use an in-memory fake.

type DiffOp string

const (
	DiffOpAdd    DiffOp = "add"
	DiffOpChange DiffOp = "change"
	DiffOpDel    DiffOp = "del"
)

// DiffEvent is one add/change/delete notification for one key,
// delivered via the watch stream. `NewValue` is set for add and change.
type DiffEvent struct {
	Op       DiffOp   `json:"op"`
	Key      RecordId `json:"key"`
	NewValue Record   `json:"newValue,omitempty"`
}

type DiffFunction = func(diffs []DiffEvent)

// callback receives the current set of active peer client ids
type PresenceFunction = func(activeClientIds []string)

type OnlineChangeFunction = func(online bool)

// ReadTransaction is a one-shot consistent snapshot of the remote keyspace.
type ReadTransaction interface {
	// Get returns the value at `key`, with ok false for a missing key
	Get(key RecordId) (Record, bool, error)
	// ScanValues returns all currently stored values
	ScanValues() ([]Record, error)
}

// Remote is the mutation-log sync service the bridge mirrors.
// Mutation submissions are fire-and-forget: delivery is at-least-once
// with retry and reconnect handled inside the implementation, and
// submission faults surface later through the diff stream or the
// online signal rather than at the call site.
type Remote interface {
	// identity accessors
	ClientId() string
	UserId() string
	RoomId() string

	// Read runs `fn` against a consistent snapshot
	Read(ctx context.Context, fn func(tx ReadTransaction) error) error

	// UpdateRecords submits one document mutation batch, remote-ordered
	UpdateRecords(batch *UpdateBatch)

	// CreateRecord upserts a single record. used for presence.
	CreateRecord(record Record)

	// Watch subscribes to the continuous diff stream. returns an unsubscribe.
	Watch(callback DiffFunction) func()

	// SubscribeToPresence subscribes to the peer roster stream. returns an unsubscribe.
	SubscribeToPresence(callback PresenceFunction) func()

	// AddOnlineChangeCallback subscribes to online/offline transitions.
	// the callback is invoked with the current value on subscribe.
	AddOnlineChangeCallback(callback OnlineChangeFunction) func()
}
