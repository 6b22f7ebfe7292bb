package power

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
)

var ErrInvalidPause = errors.New("pause timestamp is in the past")

func New(events *bus.Bus, store StateStore) *Scheduler {
	s := &Scheduler{
		events:  events,
		store:   store,
		now:     time.Now,
		powerOn: true,
	}

	if store != nil {
		if state, err := store.GetSystemState(context.Background()); err == nil {
			s.powerOn = state.PowerOn
			s.pauseUntil = state.PauseUntil
		} else {
			slog.Warn("could not restore system state, defaulting to powered on", "error", err)
		}
	}

	return s
}

// SetZoneController breaks the construction cycle between the power
// scheduler and the zone controller; it must be called during wiring,
// before any command arrives.
func (s *Scheduler) SetZoneController(zones ZoneStopper) {
	s.mu.Lock()
	s.zones = zones
	s.mu.Unlock()
}

func (s *Scheduler) IsPowerOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.powerOn
}

func (s *Scheduler) State() (bool, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.powerOn, s.pauseUntil
}

// SetPower flips the system flag. Powering off first deactivates every
// running zone through the zone controller's normal stop path.
func (s *Scheduler) SetPower(on bool) {
	slog.Debug(">>SetPower", "on", on)
	defer slog.Debug("<<SetPower", "on", on)

	s.mu.Lock()
	zones := s.zones
	changed := s.powerOn != on
	s.mu.Unlock()

	if !on && zones != nil {
		zones.StopAll()
	}

	s.mu.Lock()
	s.powerOn = on
	if on {
		s.pauseUntil = 0
	}
	pauseUntil := s.pauseUntil
	s.mu.Unlock()

	s.persist()

	if changed {
		s.events.Publish(bus.EventPowerChanged, bus.PowerChanged{On: on, PauseUntil: pauseUntil})
	}
}

// SetPause arms a pause ending at the given unix timestamp (seconds).
// While powered off this is a configuration write only; the valves are
// already closed.
func (s *Scheduler) SetPause(untilEpochSeconds int64) error {
	slog.Debug(">>SetPause", "until", untilEpochSeconds)
	defer slog.Debug("<<SetPause", "until", untilEpochSeconds)

	if untilEpochSeconds != 0 && untilEpochSeconds <= s.now().Unix() {
		return ErrInvalidPause
	}

	s.mu.Lock()
	s.pauseUntil = untilEpochSeconds
	wasOn := s.powerOn
	s.mu.Unlock()

	if untilEpochSeconds != 0 && wasOn {
		s.SetPower(false)
		return nil
	}

	s.persist()

	return nil
}

// StartMonitoring runs the pause expiry check until the context is
// cancelled.
func (s *Scheduler) StartMonitoring(ctx context.Context) {
	go func() {
		slog.Info(">>StartMonitoring power")
		defer slog.Info("<<StartMonitoring power")

		ticker := time.NewTicker(PauseCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				s.checkPause(s.now())
			}
		}
	}()
}

func (s *Scheduler) checkPause(now time.Time) {
	s.mu.Lock()
	expired := s.pauseUntil != 0 && now.Unix() >= s.pauseUntil
	s.mu.Unlock()

	if !expired {
		return
	}

	slog.Info("pause expired, restoring power")
	s.SetPower(true)
}

func (s *Scheduler) persist() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	arg := database.SaveSystemStateParams{PowerOn: s.powerOn, PauseUntil: s.pauseUntil}
	s.mu.Unlock()

	if _, err := s.store.SaveSystemState(context.Background(), arg); err != nil {
		slog.Error("failed to save the system state", "error", err)
	}
}
