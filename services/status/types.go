package status

import (
	"sync"

	"github.com/KyleBrandon/irrigation-server/services/tank"
	"github.com/KyleBrandon/irrigation-server/services/zone"
)

type ZoneSource interface {
	Snapshot() []zone.Status
}

type TankSource interface {
	Snapshot() []tank.Status
	AggregatePercent() float64
}

type LeakSource interface {
	Suspected() bool
}

type PowerSource interface {
	State() (bool, int64)
}

type SystemStatus struct {
	PowerOn       bool          `json:"power_on"`
	PauseUntil    int64         `json:"pause_until"`
	LeakSuspected bool          `json:"leak_suspected"`
	FlowRateLPM   float64       `json:"flow_rate_lpm"`
	TankAggregate float64       `json:"tank_aggregate_percent"`
	Zones         []zone.Status `json:"zones"`
	Tanks         []tank.Status `json:"tanks"`
}

type Handler struct {
	zones          ZoneSource
	tanks          TankSource
	leaks          LeakSource
	power          PowerSource
	originPatterns []string

	mu           sync.Mutex
	lastFlowRate float64
}
