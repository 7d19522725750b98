package bridge

import (
	"sync"

	"github.com/golang/glog"
)

// the status reporter exposes a tri-state readiness signal to the ui:
//
//	loading -> synced-local <-> synced-remote
//
// plus a terminal error state reachable from any non-terminal state.
// synced-local <-> synced-remote transitions are driven purely by the
// remote online signal. error is sticky: a fresh bridge activation is
// required to leave it.

type StoreStatus string

const (
	StatusLoading      StoreStatus = "loading"
	StatusSyncedLocal  StoreStatus = "synced-local"
	StatusSyncedRemote StoreStatus = "synced-remote"
	StatusError        StoreStatus = "error"
)

// StoreWithStatus is the ui-facing snapshot. `Store` is nil until the
// initial load completes, so `loading` is the only state where the ui
// may not assume any record exists.
type StoreWithStatus struct {
	Status StoreStatus
	Store  *LocalStore
	// "online" or "offline" once synced, "" otherwise
	ConnectionStatus string
	Err              error
}

type StatusFunction = func(status *StoreWithStatus)

type StatusReporter struct {
	stateLock sync.Mutex
	current   *StoreWithStatus

	statusCallbacks *CallbackList[StatusFunction]
	updateMonitor   *Monitor
}

func NewStatusReporter() *StatusReporter {
	return &StatusReporter{
		current: &StoreWithStatus{
			Status: StatusLoading,
		},
		statusCallbacks: NewCallbackList[StatusFunction](),
		updateMonitor:   NewMonitor(),
	}
}

func (self *StatusReporter) Status() *StoreWithStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	// copy so the caller cannot mutate reporter state
	status := *self.current
	return &status
}

// AddStatusCallback subscribes to status changes. The callback is
// invoked immediately with the current status. Returns an unsubscribe.
func (self *StatusReporter) AddStatusCallback(statusCallback StatusFunction) func() {
	callbackId := self.statusCallbacks.Add(statusCallback)
	status := self.Status()
	safeInvoke(func() {
		statusCallback(status)
	})
	return func() {
		self.statusCallbacks.Remove(callbackId)
	}
}

// UpdateMonitor notifies when the status changes
func (self *StatusReporter) UpdateMonitor() *Monitor {
	return self.updateMonitor
}

func (self *StatusReporter) setLoading() {
	self.transition(func(current *StoreWithStatus) *StoreWithStatus {
		return &StoreWithStatus{
			Status: StatusLoading,
		}
	})
}

// the initial load completed. remote sync is not yet confirmed, so the
// state is synced-local until the online signal reports otherwise.
func (self *StatusReporter) setSyncedLocal(store *LocalStore) {
	self.transition(func(current *StoreWithStatus) *StoreWithStatus {
		return &StoreWithStatus{
			Status:           StatusSyncedLocal,
			Store:            store,
			ConnectionStatus: "offline",
		}
	})
}

func (self *StatusReporter) setOnline(online bool) {
	self.transition(func(current *StoreWithStatus) *StoreWithStatus {
		if current.Store == nil {
			// not populated yet. the online signal does not change that.
			return &StoreWithStatus{
				Status: StatusLoading,
			}
		}
		next := &StoreWithStatus{
			Store: current.Store,
		}
		if online {
			next.Status = StatusSyncedRemote
			next.ConnectionStatus = "online"
		} else {
			next.Status = StatusSyncedLocal
			next.ConnectionStatus = "offline"
		}
		return next
	})
}

func (self *StatusReporter) setError(err error) {
	self.transition(func(current *StoreWithStatus) *StoreWithStatus {
		return &StoreWithStatus{
			Status: StatusError,
			Err:    err,
		}
	})
}

func (self *StatusReporter) transition(fn func(current *StoreWithStatus) *StoreWithStatus) {
	var status *StoreWithStatus
	changed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.current.Status == StatusError {
			// terminal
			return
		}
		next := fn(self.current)
		if *next != *self.current {
			self.current = next
			changed = true
		}
		statusCopy := *self.current
		status = &statusCopy
	}()

	if !changed {
		return
	}

	if status.Status == StatusError {
		glog.Infof("[status]error = %s\n", status.Err)
	} else {
		glog.V(1).Infof("[status]%s\n", status.Status)
	}

	for _, statusCallback := range self.statusCallbacks.Get() {
		func() {
			defer recover()
			statusCallback(status)
		}()
	}
	self.updateMonitor.NotifyAll()
}
