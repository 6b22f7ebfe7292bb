package debounce

import (
	"log/slog"
	"time"
)

func New(executor Executor) *Debouncer {
	return &Debouncer{
		executor:    executor,
		window:      Window,
		revertDelay: RevertDelay,
	}
}

// SubmitZone enqueues a zone activation request. The first request in an
// empty batch arms the window timer.
func (d *Debouncer) SubmitZone(zoneID string) {
	d.submit(Request{Kind: RequestZone, ZoneID: zoneID})
}

// SubmitSystem enqueues a system-level power-on request.
func (d *Debouncer) SubmitSystem() {
	d.submit(Request{Kind: RequestSystem})
}

func (d *Debouncer) submit(request Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.batch = append(d.batch, request)

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	batch := d.batch
	d.batch = nil
	d.timer = nil
	d.mu.Unlock()

	plan := Resolve(batch, d.executor.EnabledZoneCount())

	for _, request := range plan.Execute {
		switch request.Kind {
		case RequestSystem:
			d.executor.PowerOn()

		case RequestZone:
			if err := d.executor.ActivateZone(request.ZoneID); err != nil {
				slog.Warn("debounced zone activation failed", "zone", request.ZoneID, "error", err)
			}
		}
	}

	for _, request := range plan.Revert {
		id := request.ZoneID
		time.AfterFunc(d.revertDelay, func() {
			d.executor.RevertZone(id)
		})
	}
}

// Resolve reduces a request batch to the actions that should actually
// run.
//
// A lone zone request is a deliberate single-zone action: any system
// push that rode along with it is an artifact and is dropped. A system
// request accompanied by a zone request for every enabled zone is a
// "turn on the system" command: only the system action runs and the zone
// requests are suppressed with a cosmetic revert. Anything else executes
// as it arrived.
func Resolve(batch []Request, enabledZones int) Plan {
	systemCount := 0
	zoneCount := 0
	for _, request := range batch {
		switch request.Kind {
		case RequestSystem:
			systemCount++
		case RequestZone:
			zoneCount++
		}
	}

	var plan Plan

	switch {
	case zoneCount == 1:
		for _, request := range batch {
			if request.Kind == RequestZone {
				plan.Execute = append(plan.Execute, request)
			}
		}

	case zoneCount == enabledZones && zoneCount > 0 && systemCount == 1:
		for _, request := range batch {
			switch request.Kind {
			case RequestSystem:
				plan.Execute = append(plan.Execute, request)
			case RequestZone:
				plan.Revert = append(plan.Revert, request)
			}
		}

	default:
		plan.Execute = append(plan.Execute, batch...)
	}

	return plan
}
