package bridge

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// the local store is an in-memory reactive container of records.
// the ui reads and writes it directly and reacts to its change events.
// every mutation runs inside a transaction tagged with an origin so
// that listeners can tell a local user edit apart from a remote echo.

type TransactionOrigin string

const (
	// a local user interaction
	OriginUser TransactionOrigin = "user"
	// merged from the remote diff stream. exempt from local->remote propagation.
	OriginRemote TransactionOrigin = "remote"
	// peer presence reconciliation
	OriginPresence TransactionOrigin = "presence"
)

// ChangeBatch groups the records affected by one transaction.
// It is created per transaction, handed to listeners, then discarded.
type ChangeBatch struct {
	Origin  TransactionOrigin
	Added   map[RecordId]Record
	Updated map[RecordId][2]Record
	Removed map[RecordId]Record
}

func newChangeBatch(origin TransactionOrigin) *ChangeBatch {
	return &ChangeBatch{
		Origin:  origin,
		Added:   map[RecordId]Record{},
		Updated: map[RecordId][2]Record{},
		Removed: map[RecordId]Record{},
	}
}

func (self *ChangeBatch) Empty() bool {
	return len(self.Added) == 0 && len(self.Updated) == 0 && len(self.Removed) == 0
}

// restrict the batch to records of one scope.
// returns nil if nothing in the batch has that scope.
func (self *ChangeBatch) filterScope(scope RecordScope) *ChangeBatch {
	out := newChangeBatch(self.Origin)
	for id, record := range self.Added {
		if record.Scope() == scope {
			out.Added[id] = record
		}
	}
	for id, beforeAfter := range self.Updated {
		if beforeAfter[1].Scope() == scope {
			out.Updated[id] = beforeAfter
		}
	}
	for id, record := range self.Removed {
		if record.Scope() == scope {
			out.Removed[id] = record
		}
	}
	if out.Empty() {
		return nil
	}
	return out
}

type ChangeFunction = func(batch *ChangeBatch)

// ListenFilter restricts which change batches a listener observes.
// Zero values match everything.
type ListenFilter struct {
	Origin TransactionOrigin
	Scope  RecordScope
}

type storeListener struct {
	callback ChangeFunction
	filter   ListenFilter
}

type LocalStore struct {
	name string

	stateLock sync.Mutex
	records   map[RecordId]Record
	// open transaction, nil outside `transact`
	tx *ChangeBatch

	changeCallbacks *CallbackList[*storeListener]
}

func NewLocalStore(name string) *LocalStore {
	return &LocalStore{
		name:            name,
		records:         map[RecordId]Record{},
		changeCallbacks: NewCallbackList[*storeListener](),
	}
}

func (self *LocalStore) Name() string {
	return self.name
}

func (self *LocalStore) Get(id RecordId) (Record, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	record, ok := self.records[id]
	return record, ok
}

func (self *LocalStore) Size() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.records)
}

// RecordsOfKind returns the records of one kind ordered by id
func (self *LocalStore) RecordsOfKind(kind RecordKind) []Record {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	records := []Record{}
	for _, record := range self.records {
		if record.Kind() == kind {
			records = append(records, record)
		}
	}
	slices.SortFunc(records, func(a Record, b Record) int {
		if a.Id() < b.Id() {
			return -1
		} else if b.Id() < a.Id() {
			return 1
		}
		return 0
	})
	return records
}

func (self *LocalStore) AllRecords() []Record {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return maps.Values(self.records)
}

// Put upserts records in an implicit user transaction
func (self *LocalStore) Put(records []Record) error {
	return self.Transact(OriginUser, func() {
		self.PutInTx(records)
	})
}

// Remove deletes records in an implicit user transaction
func (self *LocalStore) Remove(ids []RecordId) error {
	return self.Transact(OriginUser, func() {
		self.RemoveInTx(ids)
	})
}

// MergeRemoteChanges runs `fn` in a remote-origin transaction.
// listeners for user-origin changes never observe these mutations,
// which is what keeps the remote diff stream from echoing back out.
func (self *LocalStore) MergeRemoteChanges(fn func()) error {
	return self.Transact(OriginRemote, fn)
}

// Transact opens a transaction tagged with `origin`, runs `fn`, then
// emits one change batch. A panic inside `fn` rolls the records map
// back to its pre-transaction state and surfaces as an error, so a
// malformed batch commits nothing. Transactions do not nest.
func (self *LocalStore) Transact(origin TransactionOrigin, fn func()) (returnErr error) {
	var batch *ChangeBatch

	err := func() (err error) {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.tx = newChangeBatch(origin)

		rollback := maps.Clone(self.records)
		defer func() {
			if r := recover(); r != nil {
				self.records = rollback
				self.tx = nil
				err = fmt.Errorf("transaction failed: %v", r)
				return
			}
			batch = self.tx
			self.tx = nil
		}()

		fn()
		return nil
	}()
	if err != nil {
		return err
	}

	if batch != nil && !batch.Empty() {
		self.emit(batch)
	}
	return nil
}

// PutInTx upserts records inside the currently open transaction.
// must be called from within the `fn` passed to `Transact`.
func (self *LocalStore) PutInTx(records []Record) {
	for _, record := range records {
		if record == nil {
			continue
		}
		id := record.Id()
		if id == "" {
			panic(fmt.Errorf("record without id"))
		}

		before, exists := self.records[id]
		if exists && reflect.DeepEqual(before, record) {
			// no-op put
			continue
		}
		self.records[id] = record

		if _, ok := self.tx.Added[id]; ok {
			// still new within this transaction
			self.tx.Added[id] = record
		} else if updated, ok := self.tx.Updated[id]; ok {
			self.tx.Updated[id] = [2]Record{updated[0], record}
		} else if removed, ok := self.tx.Removed[id]; ok {
			// removed then re-added is an update
			delete(self.tx.Removed, id)
			self.tx.Updated[id] = [2]Record{removed, record}
		} else if exists {
			self.tx.Updated[id] = [2]Record{before, record}
		} else {
			self.tx.Added[id] = record
		}
	}
}

// RemoveInTx deletes records inside the currently open transaction.
func (self *LocalStore) RemoveInTx(ids []RecordId) {
	for _, id := range ids {
		before, exists := self.records[id]
		if !exists {
			continue
		}
		delete(self.records, id)

		if _, ok := self.tx.Added[id]; ok {
			// added and removed in the same transaction cancels out
			delete(self.tx.Added, id)
		} else if updated, ok := self.tx.Updated[id]; ok {
			delete(self.tx.Updated, id)
			self.tx.Removed[id] = updated[0]
		} else {
			self.tx.Removed[id] = before
		}
	}
}

// Listen registers a change callback. Returns an unsubscribe.
func (self *LocalStore) Listen(callback ChangeFunction, filter ListenFilter) func() {
	callbackId := self.changeCallbacks.Add(&storeListener{
		callback: callback,
		filter:   filter,
	})
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *LocalStore) emit(batch *ChangeBatch) {
	for _, listener := range self.changeCallbacks.Get() {
		if listener.filter.Origin != "" && listener.filter.Origin != batch.Origin {
			continue
		}
		delivered := batch
		if listener.filter.Scope != "" {
			delivered = batch.filterScope(listener.filter.Scope)
			if delivered == nil {
				continue
			}
		}
		func() {
			defer recover()
			listener.callback(delivered)
		}()
	}
}
