package bridge

import (
	"reflect"
	"sync"
	"time"
)

// explicit observer/publisher plumbing for derived values. a derived
// value has a recompute contract and a list of subscribers notified on
// change. recomputation is triggered by the inputs' own change
// callbacks rather than by an implicit reactivity framework.

// Observable is a settable source value with change subscribers.
type Observable[T any] struct {
	mutex           sync.Mutex
	value           T
	changeCallbacks *CallbackList[func(value T)]
}

func NewObservable[T any](value T) *Observable[T] {
	return &Observable[T]{
		value:           value,
		changeCallbacks: NewCallbackList[func(value T)](),
	}
}

func (self *Observable[T]) Get() T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.value
}

func (self *Observable[T]) Set(value T) {
	changed := false
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		if !reflect.DeepEqual(self.value, value) {
			self.value = value
			changed = true
		}
	}()
	if changed {
		for _, changeCallback := range self.changeCallbacks.Get() {
			safeInvoke(func() {
				changeCallback(value)
			})
		}
	}
}

func (self *Observable[T]) AddChangeCallback(changeCallback func(value T)) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

// Derived caches the result of a compute function. `Recompute` runs
// the function and notifies subscribers when the value changed.
type Derived[T any] struct {
	compute func() T

	mutex sync.Mutex
	value T

	changeCallbacks *CallbackList[func(value T)]
}

func NewDerived[T any](compute func() T) *Derived[T] {
	return &Derived[T]{
		compute:         compute,
		value:           compute(),
		changeCallbacks: NewCallbackList[func(value T)](),
	}
}

func (self *Derived[T]) Get() T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.value
}

func (self *Derived[T]) Recompute() {
	value := self.compute()
	changed := false
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		if !reflect.DeepEqual(self.value, value) {
			self.value = value
			changed = true
		}
	}()
	if changed {
		for _, changeCallback := range self.changeCallbacks.Get() {
			safeInvoke(func() {
				changeCallback(value)
			})
		}
	}
}

func (self *Derived[T]) AddChangeCallback(changeCallback func(value T)) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

// FrameScheduler coalesces rapid-fire work to frame boundaries:
// at most one scheduled function runs per frame, and scheduling again
// within the same frame replaces the pending function. this is the
// backpressure policy for high-frequency outbound presence pushes.
type FrameScheduler interface {
	Schedule(fn func())
	Close()
}

const DefaultFrameInterval = 16 * time.Millisecond

type TickFrameScheduler struct {
	frameInterval time.Duration

	mutex   sync.Mutex
	pending func()
	armed   bool
	closed  bool
}

func NewTickFrameSchedulerWithDefaults() *TickFrameScheduler {
	return NewTickFrameScheduler(DefaultFrameInterval)
}

func NewTickFrameScheduler(frameInterval time.Duration) *TickFrameScheduler {
	return &TickFrameScheduler{
		frameInterval: frameInterval,
	}
}

func (self *TickFrameScheduler) Schedule(fn func()) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.closed {
		return
	}
	self.pending = fn
	if !self.armed {
		self.armed = true
		time.AfterFunc(self.frameInterval, self.fire)
	}
}

func (self *TickFrameScheduler) fire() {
	var fn func()
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		self.armed = false
		if self.closed {
			return
		}
		fn = self.pending
		self.pending = nil
	}()
	if fn != nil {
		safeInvoke(fn)
	}
}

func (self *TickFrameScheduler) Close() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.closed = true
	self.pending = nil
}
