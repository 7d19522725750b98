package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// the synchronization bridge keeps the local store consistent with the
// remote sync service for one (user, room) activation:
//
//	local user edit -> change batch -> structural patch -> UpdateRecords
//	remote diff batch -> filter/group -> one remote-origin store transaction
//	preferences/session state -> derived presence -> CreateRecord, frame-coalesced
//	peer roster -> fetch joined / drop departed -> one presence transaction
//
// the bridge owns no durable state. it holds only the store, the status
// reporter, and its subscriptions, all of which are released together
// on Close. a partially torn down bridge would re-enter the
// local->remote path with remote echoes, so teardown is all-or-nothing.

type BridgeSettings struct {
	// scheduler used to coalesce outbound presence pushes.
	// nil means a tick scheduler at the default frame interval.
	FrameScheduler FrameScheduler

	// explicit, removable debug accessor for the activated bridge.
	// replaces any process-wide registry of shared clients.
	DebugHook func(b *Bridge)
}

func DefaultBridgeSettings() *BridgeSettings {
	return &BridgeSettings{}
}

type Bridge struct {
	ctx    context.Context
	cancel context.CancelFunc

	remote   Remote
	settings *BridgeSettings

	store          *LocalStore
	statusReporter *StatusReporter

	clientId   string
	presenceId RecordId

	preferences        *Observable[UserPreferences]
	presenceDerivation *Derived[Record]
	frameScheduler     FrameScheduler

	// event handlers run to completion one at a time
	eventLock sync.Mutex

	stateLock sync.Mutex
	subs      []func()
	closed    bool
}

func NewBridgeWithDefaults(ctx context.Context, remote Remote) *Bridge {
	return NewBridge(ctx, remote, DefaultBridgeSettings())
}

// NewBridge activates a bridge for the remote's (user, room) pair.
// The initial load runs asynchronously; observe progress with
// `AddStatusCallback` or `WaitForStatus`.
func NewBridge(ctx context.Context, remote Remote, settings *BridgeSettings) *Bridge {
	cancelCtx, cancel := context.WithCancel(ctx)

	clientId := remote.ClientId()

	frameScheduler := settings.FrameScheduler
	if frameScheduler == nil {
		frameScheduler = NewTickFrameSchedulerWithDefaults()
	}

	b := &Bridge{
		ctx:      cancelCtx,
		cancel:   cancel,
		remote:   remote,
		settings: settings,
		store: NewLocalStore(fmt.Sprintf(
			"drawpad:%s:%s",
			remote.UserId(),
			remote.RoomId(),
		)),
		statusReporter: NewStatusReporter(),
		clientId:       clientId,
		presenceId:     PresenceId(clientId),
		preferences:    NewObservable(UserPreferences{Id: clientId}.WithDefaults()),
		frameScheduler: frameScheduler,
	}
	b.presenceDerivation = NewDerived(func() Record {
		return DerivePresence(b.store, b.preferences.Get(), b.presenceId)
	})

	if settings.DebugHook != nil {
		settings.DebugHook(b)
	}

	go b.activate()

	return b
}

func (self *Bridge) Store() *LocalStore {
	return self.store
}

func (self *Bridge) ClientId() string {
	return self.clientId
}

func (self *Bridge) PresenceId() RecordId {
	return self.presenceId
}

func (self *Bridge) Status() *StoreWithStatus {
	return self.statusReporter.Status()
}

func (self *Bridge) AddStatusCallback(statusCallback StatusFunction) func() {
	return self.statusReporter.AddStatusCallback(statusCallback)
}

// WaitForStatus blocks until the reporter reaches `status` or the
// context is done. Returns false on timeout/cancel.
func (self *Bridge) WaitForStatus(ctx context.Context, status StoreStatus) bool {
	for {
		notify := self.statusReporter.UpdateMonitor().NotifyChannel()
		if self.statusReporter.Status().Status == status {
			return true
		}
		select {
		case <-self.ctx.Done():
			return false
		case <-ctx.Done():
			return false
		case <-notify:
		}
	}
}

func (self *Bridge) UserPreferences() UserPreferences {
	return self.preferences.Get()
}

// SetUserPreferences updates the presence identity. The id always
// stays this session's client id. Defaults are substituted for an
// unset color or name. The presence derivation recomputes and any
// change is pushed on the next frame.
func (self *Bridge) SetUserPreferences(preferences UserPreferences) {
	preferences.Id = self.clientId
	self.preferences.Set(preferences.WithDefaults())
}

func (self *Bridge) activate() {
	// one consistent snapshot read of the full remote keyspace
	var initialRecords []Record
	err := self.remote.Read(self.ctx, func(tx ReadTransaction) error {
		records, err := tx.ScanValues()
		if err != nil {
			return err
		}
		initialRecords = records
		return nil
	})
	if err != nil {
		// do not continue with an empty store as if synced
		self.statusReporter.setError(fmt.Errorf("initial load: %w", err))
		return
	}

	initialRecords = slices.DeleteFunc(initialRecords, func(record Record) bool {
		if record == nil {
			return true
		}
		id := record.Id()
		// the same kind filter as the incremental diff path.
		// own presence is locally derived, never read back.
		return id == self.presenceId || !MatchesKnownKind(id)
	})

	err = self.store.MergeRemoteChanges(func() {
		self.store.PutInTx(initialRecords)
	})
	if err != nil {
		self.statusReporter.setError(fmt.Errorf("initial load: %w", err))
		return
	}

	glog.V(1).Infof("[bridge]%s loaded %d records\n", self.store.Name(), len(initialRecords))

	if !self.addSub(self.remote.Watch(self.applyDiffs)) {
		return
	}

	if !self.addSub(self.store.Listen(self.forwardLocalChanges, ListenFilter{
		Origin: OriginUser,
		Scope:  ScopeDocument,
	})) {
		return
	}

	if !self.addSub(self.remote.SubscribeToPresence(self.syncPeers)) {
		return
	}

	if !self.addSub(self.remote.AddOnlineChangeCallback(self.statusReporter.setOnline)) {
		return
	}

	// recompute presence when the preferences or any session record change
	if !self.addSub(self.preferences.AddChangeCallback(func(preferences UserPreferences) {
		self.presenceDerivation.Recompute()
	})) {
		return
	}
	if !self.addSub(self.store.Listen(func(batch *ChangeBatch) {
		self.presenceDerivation.Recompute()
	}, ListenFilter{
		Scope: ScopeSession,
	})) {
		return
	}

	// presence pushes bypass the document mutation path and are
	// coalesced to at most one outbound call per frame
	if !self.addSub(self.presenceDerivation.AddChangeCallback(func(presence Record) {
		self.frameScheduler.Schedule(self.pushPresence)
	})) {
		return
	}

	// initial presence push
	self.presenceDerivation.Recompute()
	self.pushPresence()

	self.statusReporter.setSyncedLocal(self.store)
}

// remote -> local. one atomic remote-origin transaction per diff
// batch, applied in delivery order.
func (self *Bridge) applyDiffs(diffs []DiffEvent) {
	self.eventLock.Lock()
	defer self.eventLock.Unlock()

	puts := []Record{}
	removes := []RecordId{}
	for _, diff := range diffs {
		if diff.Key == self.presenceId {
			// self presence is locally derived only
			continue
		}
		if !MatchesKnownKind(diff.Key) {
			continue
		}
		switch diff.Op {
		case DiffOpAdd, DiffOpChange:
			puts = append(puts, diff.NewValue)
		case DiffOpDel:
			removes = append(removes, diff.Key)
		}
	}
	if len(puts) == 0 && len(removes) == 0 {
		return
	}

	err := self.store.MergeRemoteChanges(func() {
		for _, record := range puts {
			if record == nil || record.Id() == "" {
				panic(fmt.Errorf("diff event without a usable value"))
			}
		}
		self.store.PutInTx(puts)
		self.store.RemoveInTx(removes)
	})
	if err != nil {
		// the whole batch rolled back. the mirror can no longer be
		// trusted, so this escalates rather than partially applying.
		self.statusReporter.setError(fmt.Errorf("apply diffs: %w", err))
	}
}

// local -> remote. one mutation call per user-origin document batch,
// updates shipped as structural patches.
func (self *Bridge) forwardLocalChanges(batch *ChangeBatch) {
	self.eventLock.Lock()
	defer self.eventLock.Unlock()

	update := NewUpdateBatch()
	maps.Copy(update.Added, batch.Added)

	update.Removed = maps.Keys(batch.Removed)
	slices.Sort(update.Removed)

	for id, beforeAfter := range batch.Updated {
		ops, err := ComputeRecordPatch(beforeAfter[0], beforeAfter[1])
		if err != nil {
			// fall back to replacing the whole record
			glog.Infof("[bridge]patch failed for %s, sending full record = %s\n", id, err)
			ops = []PatchOperation{{
				Operation: "replace",
				Path:      "",
				Value:     beforeAfter[1],
			}}
		}
		update.Updated[id] = ops
	}

	if update.Empty() {
		return
	}
	// at-least-once from the call api. retry/backoff lives in the
	// remote client, not here.
	self.remote.UpdateRecords(update)
}

// peer roster -> local store. fetch newly joined peers' presence,
// drop departed peers, in one presence-origin transaction.
func (self *Bridge) syncPeers(activeClientIds []string) {
	self.eventLock.Lock()
	defer self.eventLock.Unlock()

	nextIds := map[RecordId]bool{}
	for _, clientId := range activeClientIds {
		if clientId == self.clientId {
			continue
		}
		nextIds[PresenceId(clientId)] = true
	}

	prevIds := map[RecordId]bool{}
	for _, record := range self.store.RecordsOfKind(KindInstancePresence) {
		prevIds[record.Id()] = true
	}

	joined := []RecordId{}
	for id := range nextIds {
		if !prevIds[id] {
			joined = append(joined, id)
		}
	}
	slices.Sort(joined)

	departed := []RecordId{}
	for id := range prevIds {
		if !nextIds[id] {
			departed = append(departed, id)
		}
	}
	slices.Sort(departed)

	joinedRecords := []Record{}
	if 0 < len(joined) {
		err := self.remote.Read(self.ctx, func(tx ReadTransaction) error {
			for _, id := range joined {
				record, ok, err := tx.Get(id)
				if err != nil {
					return err
				}
				if ok && record != nil {
					joinedRecords = append(joinedRecords, record)
				}
			}
			return nil
		})
		if err != nil {
			// peer presence is ephemeral. the next roster delivery
			// retries, so this does not escalate to an error status.
			glog.Infof("[bridge]peer presence read error = %s\n", err)
		}
	}

	if len(joinedRecords) == 0 && len(departed) == 0 {
		return
	}

	// tagged distinctly from both remote diffs and user edits
	err := self.store.Transact(OriginPresence, func() {
		self.store.PutInTx(joinedRecords)
		self.store.RemoveInTx(departed)
	})
	if err != nil {
		glog.Infof("[bridge]peer presence apply error = %s\n", err)
	}
}

func (self *Bridge) pushPresence() {
	if presence := self.presenceDerivation.Get(); presence != nil {
		self.remote.CreateRecord(presence)
	}
}

// addSub registers an unsubscribe for release on Close. If the bridge
// already closed, the subscription is released immediately.
func (self *Bridge) addSub(sub func()) bool {
	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		sub()
		return false
	}
	self.subs = append(self.subs, sub)
	self.stateLock.Unlock()
	return true
}

// Close releases every subscription together. The bridge cannot be
// reactivated; create a new bridge for a fresh (user, room) mount.
func (self *Bridge) Close() {
	self.cancel()

	self.stateLock.Lock()
	if self.closed {
		self.stateLock.Unlock()
		return
	}
	self.closed = true
	subs := self.subs
	self.subs = nil
	self.stateLock.Unlock()

	for _, sub := range subs {
		sub()
	}
	self.frameScheduler.Close()
}
