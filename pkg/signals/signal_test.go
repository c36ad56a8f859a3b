package signals_test

import (
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

func TestEmitRunsSlotsInConnectOrder(t *testing.T) {
	s := signals.New[int]("test")
	var got []string
	s.Connect(func(v int) { got = append(got, "a") })
	s.Connect(func(v int) { got = append(got, "b") })
	s.Emit(1)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("slot order = %v", got)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := signals.New[int]("test")
	calls := 0
	c := s.Connect(func(int) { calls++ })
	c.Disconnect()
	c.Disconnect()
	s.Emit(1)
	if calls != 0 {
		t.Fatalf("disconnected slot ran %d times", calls)
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d", s.Count())
	}
}

func TestOnCountTracksConnections(t *testing.T) {
	s := signals.New[string]("test")
	var counts []int
	s.OnCount(func(n int) { counts = append(counts, n) })

	a := s.Connect(func(string) {})
	b := s.Connect(func(string) {})
	a.Disconnect()
	a.Disconnect()
	b.Disconnect()

	want := []int{1, 2, 1, 0}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", counts, want)
		}
	}
}

func TestPanickingSlotDoesNotStopOthers(t *testing.T) {
	s := signals.New[int]("test")
	reached := false
	s.Connect(func(int) { panic("boom") })
	s.Connect(func(int) { reached = true })
	s.Emit(0)
	if !reached {
		t.Fatal("second slot skipped after panic")
	}
}

func TestSlotMayDisconnectDuringEmit(t *testing.T) {
	s := signals.New[int]("test")
	var c *signals.Connection
	calls := 0
	c = s.Connect(func(int) {
		calls++
		c.Disconnect()
	})
	s.Emit(1)
	s.Emit(2)
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestDisconnectAll(t *testing.T) {
	s := signals.New[int]("test")
	last := -1
	s.OnCount(func(n int) { last = n })
	s.Connect(func(int) {})
	s.Connect(func(int) {})
	s.DisconnectAll()
	if last != 0 || s.Count() != 0 {
		t.Fatalf("after DisconnectAll count=%d last=%d", s.Count(), last)
	}
}
