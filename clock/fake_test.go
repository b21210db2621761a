package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	ch := clock.After(time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Errorf("fired with %v", got)
		}
	default:
		t.Fatal("After did not fire")
	}
}

func TestFakeClockAfterFunc(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Int32
	clock.AfterFunc(3*time.Second, func() { fired.Add(1) })

	clock.Advance(2 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("fired too early")
	}
	clock.Advance(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	clock.Advance(10 * time.Second)
	if fired.Load() != 1 {
		t.Fatal("single-shot timer fired twice")
	}
}

func TestFakeClockStop(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Int32
	timer := clock.AfterFunc(time.Second, func() { fired.Add(1) })

	if clock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", clock.PendingCount())
	}
	if !timer.Stop() {
		t.Error("Stop() on pending timer should return true")
	}
	if timer.Stop() {
		t.Error("second Stop() should return false")
	}
	if clock.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", clock.PendingCount())
	}

	clock.Advance(time.Second)
	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
}

func TestFakeClockCallbackCanRearm(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Int32
	var arm func()
	arm = func() {
		clock.AfterFunc(time.Second, func() {
			fired.Add(1)
			arm()
		})
	}
	arm()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
	}
	if fired.Load() != 3 {
		t.Errorf("fired = %d, want 3", fired.Load())
	}
	if clock.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", clock.PendingCount())
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.WaitForTimers(2)
		close(done)
	}()

	clock.AfterFunc(time.Second, func() {})
	clock.AfterFunc(time.Second, func() {})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForTimers did not return")
	}
}
