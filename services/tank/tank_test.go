package tank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
)

type stubRangeFinder struct {
	distances map[int]float64
	err       error
}

func (s *stubRangeFinder) MeasureDistance(_ context.Context, triggerPin, _ int) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}

	return s.distances[triggerPin], nil
}

func testTankConfig(id string, trigger, echo int) config.TankConfig {
	return config.TankConfig{
		ID:             id,
		Name:           id,
		SensorHeightCM: 200,
		MinLevelCM:     30,
		TriggerPin:     trigger,
		EchoPin:        echo,
	}
}

func TestComputeLevel(t *testing.T) {
	cfg := testTankConfig("north", 5, 6)

	// sensor height 200, min level 30: usable range is 170cm mapped onto
	// the 20..200 operating window
	cases := []struct {
		name     string
		distance float64
		level    float64
		percent  float64
	}{
		{"full tank at minimum range", 20, 170, 100},
		{"empty tank at sensor height", 200, 0, 0},
		{"half way", 110, 85, 50},
		{"below minimum range clamps to full", 3, 170, 100},
		{"beyond sensor height clamps to empty", 700, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, percent := computeLevel(cfg, tc.distance)
			assert.InDelta(t, tc.level, level, 1e-9)
			assert.InDelta(t, tc.percent, percent, 1e-9)
		})
	}
}

func TestComputeLevelDegenerateGeometry(t *testing.T) {
	cfg := config.TankConfig{ID: "flat", SensorHeightCM: 30, MinLevelCM: 30, TriggerPin: 5, EchoPin: 6}

	level, percent := computeLevel(cfg, 25)
	assert.Zero(t, level)
	assert.Zero(t, percent)
}

func TestHasGeometry(t *testing.T) {
	assert.True(t, hasGeometry(testTankConfig("ok", 5, 6)))
	assert.False(t, hasGeometry(testTankConfig("no-trigger", 0, 6)))
	assert.False(t, hasGeometry(testTankConfig("no-echo", 5, 0)))

	inverted := testTankConfig("inverted", 5, 6)
	inverted.MinLevelCM = 250
	assert.False(t, hasGeometry(inverted))
}

func TestSampleAllPublishesLevels(t *testing.T) {
	events := bus.New()
	finder := &stubRangeFinder{distances: map[int]float64{5: 20, 7: 110}}

	a := New([]config.TankConfig{
		testTankConfig("north", 5, 6),
		testTankConfig("south", 7, 8),
	}, finder, events)
	a.now = func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }

	var levels []bus.TankLevel
	events.Subscribe(bus.EventTankLevel, func(event any) {
		levels = append(levels, event.(bus.TankLevel))
	})

	var aggregates []bus.AggregateLevel
	events.Subscribe(bus.EventAggregateLevel, func(event any) {
		aggregates = append(aggregates, event.(bus.AggregateLevel))
	})

	a.sampleAll(context.Background())

	if assert.Len(t, levels, 2) {
		assert.Equal(t, "north", levels[0].TankID)
		assert.InDelta(t, 100, levels[0].Percent, 1e-9)
		assert.Equal(t, "south", levels[1].TankID)
		assert.InDelta(t, 50, levels[1].Percent, 1e-9)
	}

	// 100 + 50 clamps to the aggregate ceiling
	if assert.Len(t, aggregates, 1) {
		assert.InDelta(t, 100, aggregates[0].Percent, 1e-9)
	}
}

func TestSampleAllSkipsUnmeasurableTanks(t *testing.T) {
	events := bus.New()
	finder := &stubRangeFinder{err: ErrOutOfRange}

	a := New([]config.TankConfig{
		testTankConfig("north", 5, 6),
		testTankConfig("unwired", 0, 0),
	}, finder, events)

	count := 0
	events.Subscribe(bus.EventTankLevel, func(any) { count++ })

	a.sampleAll(context.Background())

	assert.Zero(t, count)

	// the failed cycle keeps "no reading yet" distinct from zero
	for _, status := range a.Snapshot() {
		assert.Nil(t, status.Reading)
	}

	assert.Zero(t, a.AggregatePercent())
}

func TestReadingRetainedAcrossFailedCycle(t *testing.T) {
	events := bus.New()
	finder := &stubRangeFinder{distances: map[int]float64{5: 110}}

	a := New([]config.TankConfig{testTankConfig("north", 5, 6)}, finder, events)

	a.sampleAll(context.Background())
	assert.InDelta(t, 50, a.AggregatePercent(), 1e-9)

	finder.err = ErrOutOfRange
	a.sampleAll(context.Background())

	assert.InDelta(t, 50, a.AggregatePercent(), 1e-9)
}
