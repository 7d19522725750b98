package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestObservable(t *testing.T) {
	observable := NewObservable(1)
	assert.Equal(t, 1, observable.Get())

	observed := []int{}
	unsub := observable.AddChangeCallback(func(value int) {
		observed = append(observed, value)
	})

	observable.Set(2)
	// setting an equal value does not notify
	observable.Set(2)
	observable.Set(3)
	assert.Equal(t, []int{2, 3}, observed)
	assert.Equal(t, 3, observable.Get())

	unsub()
	observable.Set(4)
	assert.Equal(t, []int{2, 3}, observed)
}

func TestDerived(t *testing.T) {
	source := 1
	derived := NewDerived(func() int {
		return source * 10
	})
	assert.Equal(t, 10, derived.Get())

	observed := []int{}
	unsub := derived.AddChangeCallback(func(value int) {
		observed = append(observed, value)
	})
	defer unsub()

	source = 2
	derived.Recompute()
	assert.Equal(t, 20, derived.Get())

	// recomputing to an equal value does not notify
	derived.Recompute()
	assert.Equal(t, []int{20}, observed)
}

func TestTickFrameSchedulerCoalesces(t *testing.T) {
	scheduler := NewTickFrameScheduler(5 * time.Millisecond)
	defer scheduler.Close()

	var mutex sync.Mutex
	runs := 0
	last := 0
	for i := 1; i <= 100; i += 1 {
		value := i
		scheduler.Schedule(func() {
			mutex.Lock()
			defer mutex.Unlock()
			runs += 1
			last = value
		})
	}

	time.Sleep(50 * time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	// at most one run per frame, and only the newest scheduled work ran
	assert.Equal(t, 1, runs)
	assert.Equal(t, 100, last)
}

func TestTickFrameSchedulerReschedules(t *testing.T) {
	scheduler := NewTickFrameScheduler(5 * time.Millisecond)
	defer scheduler.Close()

	var mutex sync.Mutex
	runs := 0
	schedule := func() {
		scheduler.Schedule(func() {
			mutex.Lock()
			defer mutex.Unlock()
			runs += 1
		})
	}

	schedule()
	time.Sleep(25 * time.Millisecond)
	schedule()
	time.Sleep(25 * time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, 2, runs)
}

func TestTickFrameSchedulerClose(t *testing.T) {
	scheduler := NewTickFrameScheduler(5 * time.Millisecond)

	var mutex sync.Mutex
	runs := 0
	scheduler.Schedule(func() {
		mutex.Lock()
		defer mutex.Unlock()
		runs += 1
	})
	scheduler.Close()

	time.Sleep(25 * time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, 0, runs)

	// scheduling after close is a no-op
	scheduler.Schedule(func() {})
}
