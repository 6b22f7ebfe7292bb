package tank

import (
	"context"
	"log/slog"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
	"github.com/KyleBrandon/irrigation-server/internal/metrics"
)

func New(configs []config.TankConfig, finder RangeFinder, events *bus.Bus) *Aggregator {
	tanks := make([]*Tank, 0, len(configs))
	for _, cfg := range configs {
		tanks = append(tanks, &Tank{Config: cfg})
	}

	return &Aggregator{
		finder: finder,
		events: events,
		now:    time.Now,
		tanks:  tanks,
	}
}

// StartMonitoring samples once at startup and then on every interval.
// Each cycle runs detached so a slow measurement helper never stalls the
// timer.
func (a *Aggregator) StartMonitoring(ctx context.Context) {
	go func() {
		slog.Info(">>StartMonitoring tanks")
		defer slog.Info("<<StartMonitoring tanks")

		a.sampleAll(ctx)

		ticker := time.NewTicker(SampleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				go a.sampleAll(ctx)
			}
		}
	}()
}

func (a *Aggregator) sampleAll(ctx context.Context) {
	for _, t := range a.tanks {
		if !hasGeometry(t.Config) {
			continue
		}

		distance, err := a.finder.MeasureDistance(ctx, t.Config.TriggerPin, t.Config.EchoPin)
		if err != nil {
			slog.Warn("skipping tank level update", "tank", t.Config.ID, "error", err)
			continue
		}

		level, percent := computeLevel(t.Config, distance)
		reading := &Reading{Time: a.now(), LevelCM: level, Percent: percent}

		a.mu.Lock()
		t.Last = reading
		a.mu.Unlock()

		metrics.TankLevelPercent.WithLabelValues(t.Config.ID).Set(percent)

		a.events.Publish(bus.EventTankLevel, bus.TankLevel{
			TankID:  t.Config.ID,
			Time:    reading.Time,
			LevelCM: level,
			Percent: percent,
		})
	}

	a.events.Publish(bus.EventAggregateLevel, bus.AggregateLevel{
		Percent: a.AggregatePercent(),
	})
}

// AggregatePercent is the clamped sum of every reporting tank.
func (a *Aggregator) AggregatePercent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0.0
	for _, t := range a.tanks {
		if t.Last == nil {
			continue
		}
		total += t.Last.Percent
	}

	return clamp(total, 0, 100)
}

type Status struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Reading *Reading `json:"reading,omitempty"`
}

func (a *Aggregator) Snapshot() []Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	statuses := make([]Status, 0, len(a.tanks))
	for _, t := range a.tanks {
		statuses = append(statuses, Status{
			ID:      t.Config.ID,
			Name:    t.Config.Name,
			Reading: t.Last,
		})
	}

	return statuses
}

func hasGeometry(cfg config.TankConfig) bool {
	if cfg.TriggerPin == gpio.PinUnassigned || cfg.EchoPin == gpio.PinUnassigned {
		return false
	}

	return cfg.SensorHeightCM > 0 && cfg.MinLevelCM >= 0 && cfg.SensorHeightCM > cfg.MinLevelCM
}

// computeLevel rescales the clamped distance from the sensor's operating
// range onto the tank's usable range. Raw inversion would read the
// sensor's non-zero minimum range as a full tank.
func computeLevel(cfg config.TankConfig, distance float64) (float64, float64) {
	operatingMax := MaxRangeCM
	if cfg.SensorHeightCM < operatingMax {
		operatingMax = cfg.SensorHeightCM
	}

	clamped := clamp(distance, MinRangeCM, operatingMax)

	usable := cfg.SensorHeightCM - cfg.MinLevelCM
	span := operatingMax - MinRangeCM
	if span <= 0 || usable <= 0 {
		return 0, 0
	}

	scaled := (clamped - MinRangeCM) / span * usable
	level := usable - scaled
	percent := clamp(level/usable*100, 0, 100)

	return level, percent
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
