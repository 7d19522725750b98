package bridge

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Monitor notifies waiters of a state change by cycling a channel.
type Monitor struct {
	mutex  sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() <-chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.update
}

// closes the current update channel and replaces it with a new one
func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}

// CallbackList stores callbacks by id so that function values,
// which are not comparable, can be removed.
// `Get` returns a stable snapshot ordered by add order.
type CallbackList[T any] struct {
	mutex       sync.Mutex
	nextId      int
	callbackIds []int
	callbacks   map[int]T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbackIds: []int{},
		callbacks:   map[int]T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.callbackIds))
	for _, callbackId := range self.callbackIds {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextId
	self.nextId += 1
	self.callbackIds = append(self.callbackIds, callbackId)
	self.callbacks[callbackId] = callback
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbackIds, callbackId)
	if i < 0 {
		// not present
		return
	}
	self.callbackIds = slices.Delete(self.callbackIds, i, i+1)
	delete(self.callbacks, callbackId)
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.callbackIds = []int{}
	maps.Clear(self.callbacks)
}

// note all callbacks are invoked with a recover so that a panicking
// listener cannot take down the event source
func safeInvoke(callback func()) {
	defer recover()
	callback()
}
