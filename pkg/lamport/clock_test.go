package lamport

import (
	"sync"
	"testing"
)

func TestZeroValue(t *testing.T) {
	var c Clock
	if got := c.Current(); got != 0 {
		t.Fatalf("Current: got %d, want 0", got)
	}
	if got := c.Tick(); got != 1 {
		t.Fatalf("Tick: got %d, want 1", got)
	}
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name        string
		local       uint64
		received    uint64
		wantTime    uint64
		wantCurrent bool
	}{
		{"ahead", 2, 7, 8, true},
		{"equal", 5, 5, 6, true},
		{"behind", 9, 3, 10, false},
		{"zero both", 0, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Clock{time: tt.local}
			got := c.Observe(tt.received)
			if got != tt.wantCurrent {
				t.Errorf("Observe flag: got %v, want %v", got, tt.wantCurrent)
			}
			if c.Current() != tt.wantTime {
				t.Errorf("time: got %d, want %d", c.Current(), tt.wantTime)
			}
		})
	}
}

func TestMonotonic(t *testing.T) {
	c := New()
	prev := c.Current()
	inputs := []uint64{0, 10, 3, 3, 50, 1, 51, 0}
	for i, in := range inputs {
		var now uint64
		if i%3 == 0 {
			now = c.Tick()
		} else {
			before := c.Current()
			c.Observe(in)
			now = c.Current()
			if now <= in || now <= before {
				t.Fatalf("Observe(%d): got %d, want > %d and > %d", in, now, in, before)
			}
		}
		if now <= prev {
			t.Fatalf("step %d: time went from %d to %d", i, prev, now)
		}
		prev = now
	}
}

func TestConcurrentTicks(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Tick()
		}()
		go func(n int) {
			defer wg.Done()
			c.Observe(uint64(n))
		}(i)
	}
	wg.Wait()

	// 200 events, each adds at least one.
	if got := c.Current(); got < 200 {
		t.Errorf("Current after 200 events: got %d, want >= 200", got)
	}
}
