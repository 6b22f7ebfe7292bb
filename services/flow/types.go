package flow

import (
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
)

// SampleInterval is how often the pulse counter is drained into a flow
// sample. A sample is emitted every interval even when no pulses arrived,
// so downstream consumers see an unbroken stream.
const SampleInterval = 1 * time.Second

// Sampler converts hardware pulses from the flow meter into instantaneous
// rate and incremental volume. The counter is owned exclusively by the
// sampler; the edge callback is its only writer besides the drain.
type Sampler struct {
	pin         int
	calibration float64
	events      *bus.Bus
	now         func() time.Time

	mu     sync.Mutex
	pulses int
	anchor time.Time
}
