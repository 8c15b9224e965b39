package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func TestVirtual_AdvanceFiresInOrder(t *testing.T) {
	c := NewVirtual(epoch)

	var fired []string
	c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "c") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "a") })
	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "b") })

	c.Advance(250 * time.Millisecond)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
	if got := c.Now(); !got.Equal(epoch.Add(250 * time.Millisecond)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(250*time.Millisecond))
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(50 * time.Millisecond)
	if len(fired) != 3 || fired[2] != "c" {
		t.Errorf("fired = %v, want [a b c]", fired)
	}
}

func TestVirtual_NowDuringCallback(t *testing.T) {
	c := NewVirtual(epoch)

	var at time.Time
	c.AfterFunc(time.Second, func() { at = c.Now() })
	c.Advance(5 * time.Second)

	if !at.Equal(epoch.Add(time.Second)) {
		t.Errorf("callback saw %v, want %v", at, epoch.Add(time.Second))
	}
}

func TestVirtual_Stop(t *testing.T) {
	c := NewVirtual(epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop() = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestVirtual_StopAfterFire(t *testing.T) {
	c := NewVirtual(epoch)

	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)

	if timer.Stop() {
		t.Error("Stop() after fire = true, want false")
	}
}

func TestVirtual_CallbackSchedulesTimer(t *testing.T) {
	c := NewVirtual(epoch)

	count := 0
	c.AfterFunc(100*time.Millisecond, func() {
		count++
		c.AfterFunc(100*time.Millisecond, func() { count++ })
	})

	c.Advance(500 * time.Millisecond)

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestReal_AfterFunc(t *testing.T) {
	c := NewReal()

	done := make(chan struct{})
	c.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}

	timer := c.AfterFunc(time.Hour, func() {})
	if !timer.Stop() {
		t.Error("Stop() = false, want true")
	}
}
