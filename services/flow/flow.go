package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
	"github.com/KyleBrandon/irrigation-server/internal/metrics"
)

func New(cfg config.FlowConfig, hardware gpio.Controller, events *bus.Bus) (*Sampler, error) {
	s := &Sampler{
		pin:         cfg.Pin,
		calibration: cfg.CalibrationFactor,
		events:      events,
		now:         time.Now,
	}
	s.anchor = s.now()

	if err := hardware.WatchInput(cfg.Pin, s.pulse); err != nil {
		return nil, err
	}

	return s, nil
}

// StartSampling runs the drain loop until the context is cancelled.
func (s *Sampler) StartSampling(ctx context.Context) {
	go func() {
		slog.Info(">>StartSampling")
		defer slog.Info("<<StartSampling")

		ticker := time.NewTicker(SampleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

func (s *Sampler) pulse() {
	s.mu.Lock()
	s.pulses++
	s.mu.Unlock()
}

func (s *Sampler) sample() {
	now := s.now()

	s.mu.Lock()
	pulses := s.pulses
	elapsed := now.Sub(s.anchor)
	s.pulses = 0
	s.anchor = now
	s.mu.Unlock()

	if elapsed <= 0 {
		return
	}

	rate := float64(pulses) / elapsed.Seconds() * s.calibration
	volume := rate * elapsed.Minutes()

	metrics.FlowRate.Set(rate)

	s.events.Publish(bus.EventFlowSample, bus.FlowSample{
		Time:    now,
		RateLPM: rate,
		VolumeL: volume,
	})
}
