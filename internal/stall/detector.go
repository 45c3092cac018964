// Package stall implements the Stall Detector (spec §4.8): a periodic task
// that watches per-mission last-activity timestamps and publishes a health
// status (ok / degraded / stalled-warn / stalled-severe).
package stall

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/observability"
)

// Health is the reported state of a mission's liveness.
type Health string

const (
	HealthOK            Health = "ok"
	HealthDegraded      Health = "degraded"
	HealthStalledWarn   Health = "stalled_warn"
	HealthStalledSevere Health = "stalled_severe"
)

// DefaultTick is the detector's polling interval.
const DefaultTick = 5 * time.Second

// Activity tracks the clock a mission's health is computed against: the
// latest of its last stored event and its worker's last heartbeat.
type Activity struct {
	mu            sync.Mutex
	lastEvent     time.Time
	lastHeartbeat time.Time
}

func (a *Activity) touchEvent(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.After(a.lastEvent) {
		a.lastEvent = t
	}
}

func (a *Activity) touchHeartbeat(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.After(a.lastHeartbeat) {
		a.lastHeartbeat = t
	}
}

func (a *Activity) last() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastHeartbeat.After(a.lastEvent) {
		return a.lastHeartbeat
	}
	return a.lastEvent
}

// OnHealthChange is invoked whenever a mission's computed health changes
// between ticks; implementations publish a health field on the Event Bus.
type OnHealthChange func(missionID string, health Health, secondsSinceActivity float64)

// Detector is the periodic per-mission liveness watcher.
type Detector struct {
	warnAfter   time.Duration
	severeAfter time.Duration
	tick        time.Duration
	metrics     *observability.Metrics
	logger      *observability.Logger
	onChange    OnHealthChange

	mu         sync.Mutex
	activities map[string]*Activity
	lastHealth map[string]Health
}

// Config configures a Detector, mirroring spec §6's stall_warn_seconds /
// stall_severe_seconds.
type Config struct {
	WarnAfter   time.Duration
	SevereAfter time.Duration
	Tick        time.Duration
}

// New constructs a Detector. logger/metrics/onChange may be nil.
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics, onChange OnHealthChange) *Detector {
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = 60 * time.Second
	}
	if cfg.SevereAfter <= 0 {
		cfg.SevereAfter = 180 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	return &Detector{
		warnAfter:   cfg.WarnAfter,
		severeAfter: cfg.SevereAfter,
		tick:        cfg.Tick,
		logger:      logger,
		metrics:     metrics,
		onChange:    onChange,
		activities:  make(map[string]*Activity),
		lastHealth:  make(map[string]Health),
	}
}

// Track starts watching missionID. Safe to call repeatedly.
func (d *Detector) Track(missionID string) *Activity {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.activities[missionID]
	if !ok {
		a = &Activity{lastEvent: time.Now().UTC()}
		d.activities[missionID] = a
		d.lastHealth[missionID] = HealthOK
	}
	return a
}

// Untrack stops watching missionID, e.g. when it reaches a terminal status.
func (d *Detector) Untrack(missionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.activities, missionID)
	delete(d.lastHealth, missionID)
}

// RecordEvent updates missionID's last-activity clock from an event
// timestamp.
func (d *Detector) RecordEvent(missionID string, at time.Time) {
	d.Track(missionID).touchEvent(at)
}

// Heartbeat updates missionID's worker heartbeat clock.
func (d *Detector) Heartbeat(missionID string) {
	d.Track(missionID).touchHeartbeat(time.Now().UTC())
}

// SecondsSinceActivity reports how long missionID has been silent, for
// running_snapshot's pull-based reporting (spec §4.7, §4.8).
func (d *Detector) SecondsSinceActivity(missionID string) float64 {
	d.mu.Lock()
	a, ok := d.activities[missionID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return time.Since(a.last()).Seconds()
}

// healthFor maps seconds-since-activity to the four-state health spec §2's
// component summary names (ok / degraded / stalled-warn / stalled-severe).
// spec §4.8 only defines warn/severe thresholds; degraded is the earlier,
// softer signal halfway to warn, so dashboards get advance notice before a
// mission crosses into stalled-warn.
func (d *Detector) healthFor(seconds float64) Health {
	d.mu.Lock()
	warn, severe := d.warnAfter, d.severeAfter
	d.mu.Unlock()
	degraded := warn.Seconds() / 2
	switch {
	case seconds >= severe.Seconds():
		return HealthStalledSevere
	case seconds >= warn.Seconds():
		return HealthStalledWarn
	case seconds >= degraded:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// SetThresholds updates the warn/severe durations in place, for the
// config hot-reload path (spec §12 supplemented feature).
func (d *Detector) SetThresholds(warnAfter, severeAfter time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if warnAfter > 0 {
		d.warnAfter = warnAfter
	}
	if severeAfter > 0 {
		d.severeAfter = severeAfter
	}
}

// Run blocks, ticking every d.tick until ctx is cancelled, publishing health
// transitions via onChange (debounced: only on change, per spec §4.8).
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Detector) sweep() {
	d.mu.Lock()
	type snapshot struct {
		missionID string
		seconds   float64
	}
	snaps := make([]snapshot, 0, len(d.activities))
	for id, a := range d.activities {
		snaps = append(snaps, snapshot{id, time.Since(a.last()).Seconds()})
	}
	d.mu.Unlock()

	for _, snap := range snaps {
		health := d.healthFor(snap.seconds)

		d.mu.Lock()
		prev := d.lastHealth[snap.missionID]
		d.lastHealth[snap.missionID] = health
		d.mu.Unlock()

		if health == prev {
			continue
		}
		if d.metrics != nil {
			switch health {
			case HealthStalledWarn:
				d.metrics.StallWarnings.Inc()
			case HealthStalledSevere:
				d.metrics.StallSevere.Inc()
			}
		}
		if d.logger != nil && health != HealthOK {
			d.logger.Warn(context.Background(), "mission stall detected", "mission_id", snap.missionID, "health", health, "seconds_since_activity", snap.seconds)
		}
		if d.onChange != nil {
			d.onChange(snap.missionID, health, snap.seconds)
		}
	}
}
