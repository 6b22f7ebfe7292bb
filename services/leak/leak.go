package leak

import (
	"context"
	"log/slog"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/metrics"
	"github.com/google/uuid"
)

func New(events *bus.Bus, store LeakStore) *Detector {
	d := &Detector{
		events: events,
		store:  store,
	}

	// A leak that was never cleared survives a restart.
	if store != nil {
		if event, err := store.GetLatestLeak(context.Background()); err == nil &&
			event.ID != uuid.Nil && !event.ClearedAt.Valid {
			slog.Warn("restoring uncleared leak flag", "detected_at", event.DetectedAt)
			d.suspected = true
			d.currentLeakID = event.ID
		}
	}

	events.Subscribe(bus.EventFlowSample, func(event any) {
		if sample, ok := event.(bus.FlowSample); ok {
			d.onSample(sample)
		}
	})

	events.Subscribe(bus.EventValveClosed, func(event any) {
		if closed, ok := event.(bus.ValveClosed); ok {
			d.mu.Lock()
			d.lastClose = closed.Time
			d.mu.Unlock()
		}
	})

	events.Subscribe(bus.EventZoneStarted, func(event any) {
		d.mu.Lock()
		d.activeZones++
		d.mu.Unlock()
	})

	events.Subscribe(bus.EventZoneStopped, func(event any) {
		d.mu.Lock()
		if d.activeZones > 0 {
			d.activeZones--
		}
		d.mu.Unlock()
	})

	return d
}

func (d *Detector) Suspected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.suspected
}

// onSample appends to the window, evicts expired samples, and applies the
// heuristic. The flag never changes while any zone is active.
func (d *Detector) onSample(sample bus.FlowSample) {
	d.mu.Lock()

	d.samples = append(d.samples, sample)
	cutoff := sample.Time.Add(-Window)
	evicted := 0
	for evicted < len(d.samples) && !d.samples[evicted].Time.After(cutoff) {
		evicted++
	}
	d.samples = d.samples[evicted:]

	if d.activeZones > 0 || len(d.samples) == 0 {
		d.mu.Unlock()
		return
	}

	nonZero := 0
	for _, s := range d.samples {
		if s.VolumeL > 0 {
			nonZero++
		}
	}
	fraction := float64(nonZero) / float64(len(d.samples))

	// Flow right after a close is drainage, not a leak. Durations are
	// compared as time.Duration throughout; the guard is wall-clock
	// seconds against the last CLOSED event time.
	settled := d.lastClose.IsZero() || sample.Time.Sub(d.lastClose) > CloseSettleTime

	var raise, clear bool
	switch {
	case !d.suspected && fraction > Threshold && settled:
		d.suspected = true
		raise = true

	case d.suspected && fraction == 0:
		d.suspected = false
		clear = true
	}
	d.mu.Unlock()

	if raise {
		d.raiseLeak(sample)
	}

	if clear {
		d.clearLeak(sample)
	}
}

func (d *Detector) raiseLeak(sample bus.FlowSample) {
	slog.Warn("leak suspected", "rate_lpm", sample.RateLPM, "time", sample.Time)

	metrics.LeakEvents.Inc()

	if d.store != nil {
		event, err := d.store.CreateLeakDetected(context.Background(), sample.Time)
		if err != nil {
			slog.Error("failed to save the leak event", "error", err)
		} else {
			d.mu.Lock()
			d.currentLeakID = event.ID
			d.mu.Unlock()
		}
	}

	d.events.Publish(bus.EventLeakDetected, bus.LeakDetected{Time: sample.Time})
}

func (d *Detector) clearLeak(sample bus.FlowSample) {
	slog.Info("leak cleared", "time", sample.Time)

	d.mu.Lock()
	leakID := d.currentLeakID
	d.currentLeakID = uuid.Nil
	d.mu.Unlock()

	if d.store != nil && leakID != uuid.Nil {
		if _, err := d.store.UpdateLeakCleared(context.Background(), leakID); err != nil {
			slog.Error("failed to update the leak event", "error", err)
		}
	}

	d.events.Publish(bus.EventLeakCleared, bus.LeakCleared{Time: sample.Time})
}
