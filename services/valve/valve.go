package valve

import (
	"context"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
	"github.com/KyleBrandon/irrigation-server/internal/metrics"
)

func New(id string, zoneID string, pin int, hardware gpio.Controller, events *bus.Bus, store EventStore) *Valve {
	v := &Valve{
		ID:       id,
		ZoneID:   zoneID,
		Pin:      pin,
		hardware: hardware,
		events:   events,
		store:    store,
		now:      time.Now,
	}

	// Flow is attributed to whichever valve is open when the sample
	// arrives; there is no direct flow-to-valve wiring.
	events.Subscribe(bus.EventFlowSample, func(event any) {
		sample, ok := event.(bus.FlowSample)
		if !ok {
			return
		}

		v.addFlow(sample)
	})

	return v
}

// Open drives the relay active and starts volume accumulation. A valve
// without an assigned relay pin never opens.
func (v *Valve) Open() {
	slog.Debug(">>Valve.Open", "valve", v.ID)
	defer slog.Debug("<<Valve.Open", "valve", v.ID)

	if v.Pin == gpio.PinUnassigned {
		return
	}

	v.mu.Lock()
	if v.openedAt != nil {
		v.mu.Unlock()
		return
	}

	if err := v.hardware.OpenRelay(v.Pin); err != nil {
		slog.Error("failed to drive relay open", "valve", v.ID, "pin", v.Pin, "error", err)
		v.mu.Unlock()
		return
	}

	openedAt := v.now()
	v.openedAt = &openedAt
	v.volumeL = 0
	v.mu.Unlock()

	v.events.Publish(bus.EventValveOpened, bus.ValveOpened{
		ValveID: v.ID,
		ZoneID:  v.ZoneID,
		Time:    openedAt,
	})

	v.saveEvent(true, 0, 0)
}

// Close drives the relay inactive, reports the accumulated volume once,
// and resets. Duration is zero when the valve was never opened.
func (v *Valve) Close() {
	slog.Debug(">>Valve.Close", "valve", v.ID)
	defer slog.Debug("<<Valve.Close", "valve", v.ID)

	if v.Pin != gpio.PinUnassigned {
		if err := v.hardware.CloseRelay(v.Pin); err != nil {
			slog.Error("failed to drive relay closed", "valve", v.ID, "pin", v.Pin, "error", err)
		}
	}

	v.mu.Lock()
	closedAt := v.now()

	var duration time.Duration
	if v.openedAt != nil {
		duration = closedAt.Sub(*v.openedAt)
	}

	volume := v.volumeL
	v.openedAt = nil
	v.volumeL = 0
	v.mu.Unlock()

	v.events.Publish(bus.EventValveClosed, bus.ValveClosed{
		ValveID:  v.ID,
		ZoneID:   v.ZoneID,
		Time:     closedAt,
		VolumeL:  volume,
		Duration: duration,
	})

	metrics.WaterVolume.WithLabelValues(v.ZoneID).Add(volume)

	v.saveEvent(false, volume, duration)
}

func (v *Valve) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.openedAt != nil
}

func (v *Valve) addFlow(sample bus.FlowSample) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.openedAt == nil {
		return
	}

	v.volumeL += sample.VolumeL
}

func (v *Valve) saveEvent(opened bool, volume float64, duration time.Duration) {
	if v.store == nil {
		return
	}

	arg := database.CreateValveEventParams{
		ValveID:   v.ID,
		ZoneID:    v.ZoneID,
		Opened:    opened,
		VolumeL:   volume,
		DurationS: duration.Seconds(),
	}

	if _, err := v.store.CreateValveEvent(context.Background(), arg); err != nil {
		slog.Error("failed to save the valve event", "valve", v.ID, "error", err)
	}
}
