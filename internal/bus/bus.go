// Package bus is the typed publish/subscribe mediator that connects the
// controller's components. Events of the same kind are delivered to
// subscribers in publish order; handlers run on the publisher's goroutine
// and must not block.
package bus

import (
	"sync"
	"time"
)

type EventKind int

const (
	EventValveOpened EventKind = iota
	EventValveClosed
	EventFlowSample
	EventTankLevel
	EventAggregateLevel
	EventLeakDetected
	EventLeakCleared
	EventZoneStarted
	EventZoneStopped
	EventZoneReverted
	EventPowerChanged
)

type (
	ValveOpened struct {
		ValveID string    `json:"valve_id"`
		ZoneID  string    `json:"zone_id"`
		Time    time.Time `json:"time"`
	}

	ValveClosed struct {
		ValveID  string        `json:"valve_id"`
		ZoneID   string        `json:"zone_id"`
		Time     time.Time     `json:"time"`
		VolumeL  float64       `json:"volume_l"`
		Duration time.Duration `json:"duration"`
	}

	FlowSample struct {
		Time    time.Time `json:"time"`
		RateLPM float64   `json:"rate_lpm"`
		VolumeL float64   `json:"volume_l"`
	}

	TankLevel struct {
		TankID  string    `json:"tank_id"`
		Time    time.Time `json:"time"`
		LevelCM float64   `json:"level_cm"`
		Percent float64   `json:"percent"`
	}

	AggregateLevel struct {
		Percent float64 `json:"percent"`
	}

	LeakDetected struct {
		Time time.Time `json:"time"`
	}

	LeakCleared struct {
		Time time.Time `json:"time"`
	}

	ZoneStarted struct {
		ZoneID string    `json:"zone_id"`
		Time   time.Time `json:"time"`
	}

	ZoneStopped struct {
		ZoneID   string        `json:"zone_id"`
		Time     time.Time     `json:"time"`
		VolumeL  float64       `json:"volume_l"`
		Duration time.Duration `json:"duration"`
	}

	// ZoneReverted tells the presentation layer to settle a zone control
	// back to inactive without any scheduling side effect.
	ZoneReverted struct {
		ZoneID string `json:"zone_id"`
	}

	PowerChanged struct {
		On         bool  `json:"on"`
		PauseUntil int64 `json:"pause_until"`
	}
)

type Handler func(event any)

type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

func New() *Bus {
	return &Bus{
		handlers: make(map[EventKind][]Handler),
	}
}

// Subscribe registers a handler for one event kind. Subscriptions are
// made during wiring, before the timers start, and last for the process
// lifetime.
func (b *Bus) Subscribe(kind EventKind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish delivers the event to every subscriber of its kind, in
// subscription order, on the caller's goroutine.
func (b *Bus) Publish(kind EventKind, event any) {
	b.mu.RLock()
	handlers := b.handlers[kind]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
