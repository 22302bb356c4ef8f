package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(5 * time.Second)
	if got, want := c.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfterFuncFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	var fired atomic.Int32
	c.AfterFunc(4*time.Second, func() { fired.Add(1) })

	c.Advance(3 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("fired before deadline")
	}
	c.Advance(time.Second)
	if fired.Load() != 1 {
		t.Fatal("did not fire at deadline")
	}
	c.Advance(time.Hour)
	if fired.Load() != 1 {
		t.Fatal("one-shot timer fired twice")
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	c := Fake(epoch)
	var fired atomic.Int32
	timer := c.AfterFunc(time.Second, func() { fired.Add(1) })

	if !timer.Stop() {
		t.Fatal("Stop on pending timer should return true")
	}
	if timer.Stop() {
		t.Fatal("second Stop should return false")
	}
	c.Advance(2 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("stopped timer fired")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expected no pending timers, got %d", c.PendingCount())
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(14*time.Second, func() { order = append(order, 14) })
	c.AfterFunc(4*time.Second, func() { order = append(order, 4) })
	c.AfterFunc(9*time.Second, func() { order = append(order, 9) })

	c.Advance(20 * time.Second)
	if len(order) != 3 || order[0] != 4 || order[1] != 9 || order[2] != 14 {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestFakeCallbackStopsLaterTimer(t *testing.T) {
	c := Fake(epoch)
	var later *Timer
	var laterFired bool
	c.AfterFunc(time.Second, func() { later.Stop() })
	later = c.AfterFunc(2*time.Second, func() { laterFired = true })

	c.Advance(5 * time.Second)
	if laterFired {
		t.Fatal("timer stopped by an earlier callback in the same Advance must not fire")
	}
}

func TestFakeNonPositiveDurationFiresOnNextAdvance(t *testing.T) {
	c := Fake(epoch)
	var fired bool
	c.AfterFunc(0, func() { fired = true })
	if fired {
		t.Fatal("AfterFunc must not run the callback inline")
	}
	c.Advance(0)
	if !fired {
		t.Fatal("due timer did not fire on Advance(0)")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Second, func() { close(done) })
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer registered by goroutine did not fire")
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil timer Stop should return false")
	}
}
