package flow

import (
	"testing"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
)

func newTestSampler(t *testing.T, calibration float64) (*Sampler, *gpio.MockController, *bus.Bus) {
	t.Helper()

	events := bus.New()
	hardware := gpio.NewMockController()

	cfg := config.FlowConfig{Pin: 23, CalibrationFactor: calibration}
	s, err := New(cfg, hardware, events)
	if err != nil {
		t.Fatalf("failed to create the sampler: %v", err)
	}

	return s, hardware, events
}

func TestSampleComputesRateAndVolume(t *testing.T) {
	s, hardware, events := newTestSampler(t, 0.2)

	var samples []bus.FlowSample
	events.Subscribe(bus.EventFlowSample, func(event any) {
		samples = append(samples, event.(bus.FlowSample))
	})

	anchor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.anchor = anchor
	s.now = func() time.Time { return anchor.Add(1 * time.Second) }

	hardware.FireEdge(23, 30)
	s.sample()

	if len(samples) != 1 {
		t.Fatalf("expected one flow sample, got %d", len(samples))
	}

	// 30 pulses over 1s at 0.2 L/min per Hz = 6 L/min
	if samples[0].RateLPM != 6.0 {
		t.Errorf("expected 6.0 L/min, got %f", samples[0].RateLPM)
	}

	// 6 L/min over 1/60 min = 0.1 L
	if diff := samples[0].VolumeL - 0.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 0.1 L, got %f", samples[0].VolumeL)
	}
}

func TestSampleResetsCounter(t *testing.T) {
	s, hardware, events := newTestSampler(t, 0.2)

	var samples []bus.FlowSample
	events.Subscribe(bus.EventFlowSample, func(event any) {
		samples = append(samples, event.(bus.FlowSample))
	})

	anchor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := anchor.Add(1 * time.Second)
	s.anchor = anchor
	s.now = func() time.Time { return current }

	hardware.FireEdge(23, 10)
	s.sample()

	// no pulses in the second interval
	current = current.Add(1 * time.Second)
	s.sample()

	if len(samples) != 2 {
		t.Fatalf("expected two flow samples, got %d", len(samples))
	}

	if samples[1].RateLPM != 0 || samples[1].VolumeL != 0 {
		t.Errorf("expected an idle sample after reset, got %+v", samples[1])
	}
}

func TestIdleSamplesStillEmitted(t *testing.T) {
	s, _, events := newTestSampler(t, 0.2)

	count := 0
	events.Subscribe(bus.EventFlowSample, func(any) { count++ })

	anchor := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.anchor = anchor
	s.now = func() time.Time { return anchor.Add(1 * time.Second) }

	s.sample()

	// the leak detector needs zero samples in its window too
	if count != 1 {
		t.Errorf("expected an idle sample to be published, got %d", count)
	}
}
