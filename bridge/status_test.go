package bridge

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStatusLifecycle(t *testing.T) {
	reporter := NewStatusReporter()
	assert.Equal(t, StatusLoading, reporter.Status().Status)

	store := NewLocalStore("test")
	reporter.setSyncedLocal(store)
	status := reporter.Status()
	assert.Equal(t, StatusSyncedLocal, status.Status)
	assert.Equal(t, store, status.Store)
	assert.Equal(t, "offline", status.ConnectionStatus)

	reporter.setOnline(true)
	status = reporter.Status()
	assert.Equal(t, StatusSyncedRemote, status.Status)
	assert.Equal(t, "online", status.ConnectionStatus)

	reporter.setOnline(false)
	assert.Equal(t, StatusSyncedLocal, reporter.Status().Status)
}

func TestStatusOnlineWhileLoading(t *testing.T) {
	reporter := NewStatusReporter()

	// the online signal does not imply the store is populated
	reporter.setOnline(true)
	assert.Equal(t, StatusLoading, reporter.Status().Status)
	assert.Equal(t, true, reporter.Status().Store == nil)
}

func TestStatusErrorIsSticky(t *testing.T) {
	reporter := NewStatusReporter()
	reporter.setSyncedLocal(NewLocalStore("test"))

	fault := errors.New("malformed record")
	reporter.setError(fault)
	status := reporter.Status()
	assert.Equal(t, StatusError, status.Status)
	assert.Equal(t, fault, status.Err)

	// no transition leaves the terminal state
	reporter.setOnline(true)
	assert.Equal(t, StatusError, reporter.Status().Status)
	reporter.setSyncedLocal(NewLocalStore("other"))
	assert.Equal(t, StatusError, reporter.Status().Status)
	reporter.setLoading()
	assert.Equal(t, StatusError, reporter.Status().Status)
}

func TestStatusCallbacks(t *testing.T) {
	reporter := NewStatusReporter()

	observed := []StoreStatus{}
	unsub := reporter.AddStatusCallback(func(status *StoreWithStatus) {
		observed = append(observed, status.Status)
	})

	// invoked immediately with the current status
	assert.Equal(t, []StoreStatus{StatusLoading}, observed)

	store := NewLocalStore("test")
	reporter.setSyncedLocal(store)
	reporter.setOnline(true)
	// a repeated signal with no state change stays silent
	reporter.setOnline(true)
	reporter.setOnline(false)

	assert.Equal(t, []StoreStatus{
		StatusLoading,
		StatusSyncedLocal,
		StatusSyncedRemote,
		StatusSyncedLocal,
	}, observed)

	unsub()
	reporter.setOnline(true)
	assert.Equal(t, 4, len(observed))
}
