package leak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
)

func feedWindow(events *bus.Bus, start time.Time, count int, volumeAt func(i int) float64) time.Time {
	at := start
	for i := 0; i < count; i++ {
		at = start.Add(time.Duration(i) * time.Second)
		events.Publish(bus.EventFlowSample, bus.FlowSample{
			Time:    at,
			RateLPM: volumeAt(i) * 60,
			VolumeL: volumeAt(i),
		})
	}

	return at
}

func TestLeakRaisedOnPersistentFlow(t *testing.T) {
	events := bus.New()
	d := New(events, nil)

	var detected []bus.LeakDetected
	events.Subscribe(bus.EventLeakDetected, func(event any) {
		detected = append(detected, event.(bus.LeakDetected))
	})

	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	// last valve close well outside the settle guard
	events.Publish(bus.EventValveClosed, bus.ValveClosed{Time: start.Add(-time.Minute)})

	// 25 of 30 samples carry volume: fraction 0.83
	last := feedWindow(events, start, 30, func(i int) float64 {
		if i < 25 {
			return 0.05
		}
		return 0
	})

	assert.True(t, d.Suspected())
	if assert.Len(t, detected, 1) {
		assert.Equal(t, last, detected[0].Time)
	}
}

func TestLeakNotRaisedAtThreshold(t *testing.T) {
	events := bus.New()
	d := New(events, nil)

	// exactly 24 of 30 is the 0.80 boundary and must not trip
	feedWindow(events, time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC), 30, func(i int) float64 {
		if i < 24 {
			return 0.05
		}
		return 0
	})

	assert.False(t, d.Suspected())
}

func TestSettleGuardBlocksDrainage(t *testing.T) {
	events := bus.New()
	d := New(events, nil)

	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	// every sample lands within 10s of the last close
	events.Publish(bus.EventValveClosed, bus.ValveClosed{Time: start.Add(25 * time.Second)})

	feedWindow(events, start, 30, func(int) float64 { return 0.05 })

	assert.False(t, d.Suspected())
}

func TestLeakClearsOnFullyIdleWindow(t *testing.T) {
	events := bus.New()
	d := New(events, nil)

	var cleared int
	events.Subscribe(bus.EventLeakCleared, func(any) { cleared++ })

	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	last := feedWindow(events, start, 30, func(int) float64 { return 0.05 })
	assert.True(t, d.Suspected())

	// a single idle sample still leaves flowing samples in the window
	events.Publish(bus.EventFlowSample, bus.FlowSample{Time: last.Add(time.Second)})
	assert.True(t, d.Suspected())

	// once the whole window is idle the flag drops
	feedWindow(events, last.Add(Window), 30, func(int) float64 { return 0 })
	assert.False(t, d.Suspected())
	assert.Equal(t, 1, cleared)
}

func TestNoTransitionsWhileZoneActive(t *testing.T) {
	events := bus.New()
	d := New(events, nil)

	events.Publish(bus.EventZoneStarted, bus.ZoneStarted{ZoneID: "front-yard"})

	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	last := feedWindow(events, start, 30, func(int) float64 { return 0.05 })

	assert.False(t, d.Suspected())

	// the irrigation flow ages out of the window after the zone stops
	events.Publish(bus.EventZoneStopped, bus.ZoneStopped{ZoneID: "front-yard"})
	feedWindow(events, last.Add(Window), 5, func(int) float64 { return 0 })

	assert.False(t, d.Suspected())
}
