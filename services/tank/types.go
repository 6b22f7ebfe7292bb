package tank

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/config"
	"github.com/KyleBrandon/irrigation-server/internal/bus"
)

const (
	// SampleInterval is the tank level refresh cadence.
	SampleInterval = 60 * time.Second

	// Rated operating range of the ultrasonic sensor. The physical
	// minimum is non-zero and must not read as "full".
	MinRangeCM = 20.0
	MaxRangeCM = 400.0
)

// ErrOutOfRange is reported when the measurement helper produced no
// usable distance. The cycle is skipped and the last reading retained.
var ErrOutOfRange = errors.New("distance measurement out of range")

// RangeFinder produces one raw distance reading for a tank's sensor.
type RangeFinder interface {
	MeasureDistance(ctx context.Context, triggerPin, echoPin int) (float64, error)
}

// Reading is the last successful measurement. Tanks hold a nil Reading
// until the first success; "no reading yet" is distinct from zero.
type Reading struct {
	Time    time.Time `json:"time"`
	LevelCM float64   `json:"level_cm"`
	Percent float64   `json:"percent"`
}

type Tank struct {
	Config config.TankConfig
	Last   *Reading
}

// Aggregator samples every configured tank on a fixed interval and
// publishes per-tank and aggregate level events.
type Aggregator struct {
	finder RangeFinder
	events *bus.Bus
	now    func() time.Time

	mu    sync.Mutex
	tanks []*Tank
}
