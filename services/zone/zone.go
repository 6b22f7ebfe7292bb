package zone

import (
	"context"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/KyleBrandon/irrigation-server/internal/jobs"
	"github.com/KyleBrandon/irrigation-server/internal/metrics"
	"github.com/KyleBrandon/irrigation-server/services/valve"
	"github.com/google/uuid"
)

func New(
	configs []config.ZoneConfig,
	valves map[string][]*valve.Valve,
	system config.SystemConfig,
	manager *jobs.JobManager,
	events *bus.Bus,
	store SessionStore,
	power PowerSource,
) *Controller {
	c := &Controller{
		zones:      make(map[string]*Zone),
		manager:    manager,
		events:     events,
		store:      store,
		power:      power,
		maxRuntime: time.Duration(system.MaxRuntimeSeconds) * time.Second,
		maxActive:  system.MaxActiveZones,
		now:        time.Now,
	}

	for _, cfg := range configs {
		runtime := time.Duration(cfg.RuntimeSeconds) * time.Second
		if runtime > c.maxRuntime {
			runtime = c.maxRuntime
		}

		c.zones[cfg.ID] = &Zone{
			ID:      cfg.ID,
			name:    cfg.Name,
			enabled: cfg.Enabled,
			runtime: runtime,
			valves:  valves[cfg.ID],
		}
		c.order = append(c.order, cfg.ID)
	}

	// Water is attributed to the running session from the valves' own
	// CLOSED events, not by polling the flow meter.
	events.Subscribe(bus.EventValveClosed, func(event any) {
		if closed, ok := event.(bus.ValveClosed); ok {
			c.onValveClosed(closed)
		}
	})

	return c
}

// ActivateZone transitions a zone from INACTIVE to ACTIVE. With the
// system powered off the request is acknowledged and then reverted
// without ever activating.
func (c *Controller) ActivateZone(id string) error {
	slog.Debug(">>ActivateZone", "zone", id)
	defer slog.Debug("<<ActivateZone", "zone", id)

	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	z.mu.Lock()
	enabled := z.enabled
	active := z.active
	z.mu.Unlock()

	if !enabled {
		return ErrZoneDisabled
	}

	if !c.power.IsPowerOn() {
		time.AfterFunc(PowerOffRevertDelay, func() {
			c.events.Publish(bus.EventZoneReverted, bus.ZoneReverted{ZoneID: id})
		})

		return ErrPowerOff
	}

	if active {
		return nil
	}

	// Make room under the concurrency cap by stopping the running zone
	// with the least time left.
	for c.activeCount() >= c.maxActive {
		victim := c.leastRemainingActive()
		if victim == nil {
			break
		}

		slog.Info("evicting active zone for new activation", "evicted", victim.ID, "requested", id)
		c.deactivate(victim)
	}

	c.start(z)

	return nil
}

// DeactivateZone transitions a zone to INACTIVE; already-inactive zones
// are a no-op.
func (c *Controller) DeactivateZone(id string) error {
	slog.Debug(">>DeactivateZone", "zone", id)
	defer slog.Debug("<<DeactivateZone", "zone", id)

	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	c.deactivate(z)

	return nil
}

// ValidateActivation reports whether an activation request could be
// accepted right now, without side effects.
func (c *Controller) ValidateActivation(id string) error {
	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if !z.enabled {
		return ErrZoneDisabled
	}

	return nil
}

// StopAll gracefully deactivates every active zone.
func (c *Controller) StopAll() {
	for _, id := range c.order {
		c.deactivate(c.zones[id])
	}
}

func (c *Controller) RenameZone(id string, name string) error {
	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	// Only the display name changes; an in-flight countdown is untouched.
	z.mu.Lock()
	z.name = name
	z.mu.Unlock()

	return nil
}

func (c *Controller) SetZoneEnabled(id string, enabled bool) error {
	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	z.mu.Lock()
	z.enabled = enabled
	z.mu.Unlock()

	// A zone disabled mid-run stops running.
	if !enabled {
		c.deactivate(z)
	}

	return nil
}

func (c *Controller) SetZoneRuntime(id string, seconds int) error {
	z, ok := c.zones[id]
	if !ok {
		return ErrZoneNotFound
	}

	runtime := time.Duration(seconds) * time.Second
	if runtime <= 0 || runtime > c.maxRuntime {
		return ErrInvalidRuntime
	}

	// Applies from the next activation; the running countdown keeps the
	// runtime it started with.
	z.mu.Lock()
	z.runtime = runtime
	z.mu.Unlock()

	return nil
}

func (c *Controller) EnabledZoneCount() int {
	count := 0
	for _, id := range c.order {
		z := c.zones[id]
		z.mu.Lock()
		if z.enabled {
			count++
		}
		z.mu.Unlock()
	}

	return count
}

func (c *Controller) Snapshot() []Status {
	statuses := make([]Status, 0, len(c.order))
	for _, id := range c.order {
		z := c.zones[id]

		z.mu.Lock()
		statuses = append(statuses, Status{
			ID:               z.ID,
			Name:             z.name,
			Enabled:          z.enabled,
			RuntimeSeconds:   int(z.runtime.Seconds()),
			ValveCount:       len(z.valves),
			Active:           z.active,
			RemainingSeconds: z.remaining.Seconds(),
			VolumeL:          z.volumeL,
		})
		z.mu.Unlock()
	}

	return statuses
}

func (c *Controller) start(z *Zone) {
	now := c.now()

	z.mu.Lock()
	if z.active || len(z.valves) == 0 {
		z.mu.Unlock()
		return
	}

	z.active = true
	z.sessionID = uuid.New()
	z.currentValve = 0
	z.startTime = now
	z.endTime = now.Add(z.runtime)
	z.sessionRuntime = z.runtime
	z.remaining = z.runtime
	z.volumeL = 0

	first := z.valves[0]
	runtime := z.sessionRuntime
	sessionID := z.sessionID
	z.mu.Unlock()

	first.Open()

	metrics.ZoneActive.WithLabelValues(z.ID).Set(1)

	c.events.Publish(bus.EventZoneStarted, bus.ZoneStarted{ZoneID: z.ID, Time: now})

	if c.store != nil {
		arg := database.StartZoneSessionParams{ID: sessionID, ZoneID: z.ID, StartTime: now}
		if _, err := c.store.StartZoneSession(context.Background(), arg); err != nil {
			slog.Error("failed to save the zone session", "zone", z.ID, "error", err)
		}
	}

	if err := c.manager.StartJob(z.ID, runtime+jobGrace, func(ctx context.Context) {
		c.runCountdown(ctx, z)
	}); err != nil {
		slog.Error("failed to start the zone countdown", "zone", z.ID, "error", err)
		c.deactivate(z)
	}
}

func (c *Controller) runCountdown(ctx context.Context, z *Zone) {
	slog.Debug(">>runCountdown", "zone", z.ID)
	defer slog.Debug("<<runCountdown", "zone", z.ID)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if expired := c.tick(z, c.now()); expired {
				// deactivate joins this goroutine through the job
				// manager, so the expiry teardown must run outside it
				go c.deactivate(z)
				return
			}
		}
	}
}

// tick advances the countdown and the virtual-zone valve hand-off. A tick
// that fires after the zone was torn down is a no-op.
func (c *Controller) tick(z *Zone, now time.Time) bool {
	z.mu.Lock()

	if !z.active {
		z.mu.Unlock()
		return false
	}

	z.remaining = z.endTime.Sub(now)
	if z.remaining < 0 {
		z.remaining = 0
	}

	if !now.Before(z.endTime) {
		z.mu.Unlock()
		return true
	}

	var toClose, toOpen *valve.Valve
	n := len(z.valves)
	if n > 1 {
		slice := z.sessionRuntime / time.Duration(n)
		idx := z.currentValve

		// valve i is done once now crosses
		// endTime - slice * (n - i - 1); the last valve runs out the
		// zone countdown itself
		for idx < n-1 {
			valveEnd := z.endTime.Add(-time.Duration(n-idx-1) * slice)
			if now.Before(valveEnd) {
				break
			}
			idx++
		}

		if idx != z.currentValve {
			toClose = z.valves[z.currentValve]
			toOpen = z.valves[idx]
			z.currentValve = idx
		}
	}
	z.mu.Unlock()

	// valve operations publish events; never hold the zone lock here
	if toClose != nil {
		toClose.Close()
	}
	if toOpen != nil {
		toOpen.Open()
	}

	return false
}

func (c *Controller) deactivate(z *Zone) {
	// Join the countdown before touching valves: a tick that already
	// decided a hand-off operates valves after dropping the zone lock,
	// and it must finish before the valves are swept closed here.
	c.manager.CancelJob(z.ID)

	z.mu.Lock()
	if !z.active {
		z.mu.Unlock()
		return
	}

	z.active = false
	valves := make([]*valve.Valve, len(z.valves))
	copy(valves, z.valves)
	z.mu.Unlock()

	for _, v := range valves {
		if v.IsOpen() {
			v.Close()
		}
	}

	now := c.now()

	z.mu.Lock()
	sessionID := z.sessionID
	z.sessionID = uuid.Nil
	startTime := z.startTime
	volume := z.volumeL
	z.remaining = 0
	z.endTime = time.Time{}
	z.mu.Unlock()

	duration := now.Sub(startTime)

	metrics.ZoneActive.WithLabelValues(z.ID).Set(0)

	c.events.Publish(bus.EventZoneStopped, bus.ZoneStopped{
		ZoneID:   z.ID,
		Time:     now,
		VolumeL:  volume,
		Duration: duration,
	})

	if c.store != nil && sessionID != uuid.Nil {
		arg := database.FinishZoneSessionParams{
			ID:        sessionID,
			EndTime:   now,
			VolumeL:   volume,
			DurationS: duration.Seconds(),
		}
		if _, err := c.store.FinishZoneSession(context.Background(), arg); err != nil {
			slog.Error("failed to finish the zone session", "zone", z.ID, "error", err)
		}
	}
}

func (c *Controller) onValveClosed(closed bus.ValveClosed) {
	z, ok := c.zones[closed.ZoneID]
	if !ok {
		return
	}

	z.mu.Lock()
	if z.sessionID != uuid.Nil {
		z.volumeL += closed.VolumeL
	}
	z.mu.Unlock()
}

func (c *Controller) activeCount() int {
	count := 0
	for _, id := range c.order {
		z := c.zones[id]
		z.mu.Lock()
		if z.active {
			count++
		}
		z.mu.Unlock()
	}

	return count
}

func (c *Controller) leastRemainingActive() *Zone {
	var victim *Zone
	var least time.Duration

	for _, id := range c.order {
		z := c.zones[id]
		z.mu.Lock()
		if z.active && (victim == nil || z.remaining < least) {
			victim = z
			least = z.remaining
		}
		z.mu.Unlock()
	}

	return victim
}
