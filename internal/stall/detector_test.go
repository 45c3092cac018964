package stall

import (
	"sync"
	"testing"
	"time"
)

func TestDetectorHealthThresholds(t *testing.T) {
	d := New(Config{WarnAfter: 60 * time.Second, SevereAfter: 180 * time.Second}, nil, nil, nil)
	if h := d.healthFor(0); h != HealthOK {
		t.Errorf("0s = %s, want ok", h)
	}
	if h := d.healthFor(30); h != HealthDegraded {
		t.Errorf("30s = %s, want degraded", h)
	}
	if h := d.healthFor(60); h != HealthStalledWarn {
		t.Errorf("60s = %s, want stalled_warn", h)
	}
	if h := d.healthFor(180); h != HealthStalledSevere {
		t.Errorf("180s = %s, want stalled_severe", h)
	}
}

func TestDetectorSweepDebouncesUnchangedHealth(t *testing.T) {
	var mu sync.Mutex
	var calls int
	d := New(Config{WarnAfter: time.Millisecond, SevereAfter: time.Hour}, nil, nil, func(missionID string, health Health, seconds float64) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	d.Track("m1")
	time.Sleep(5 * time.Millisecond)

	d.sweep()
	d.sweep()
	d.sweep()

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Fatalf("onChange called %d times across repeated sweeps with unchanged health, want 1", got)
	}
}

func TestDetectorUntrackStopsReporting(t *testing.T) {
	d := New(Config{}, nil, nil, nil)
	d.Track("m1")
	d.Untrack("m1")
	if s := d.SecondsSinceActivity("m1"); s != 0 {
		t.Errorf("SecondsSinceActivity after untrack = %v, want 0", s)
	}
}

func TestDetectorHeartbeatKeepsMissionAlive(t *testing.T) {
	d := New(Config{}, nil, nil, nil)
	a := d.Track("m1")
	a.touchEvent(time.Now().UTC().Add(-time.Hour))
	d.Heartbeat("m1")

	if s := d.SecondsSinceActivity("m1"); s > 1 {
		t.Errorf("SecondsSinceActivity = %v, want near 0 after heartbeat", s)
	}
}
