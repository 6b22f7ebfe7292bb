package zone

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/KyleBrandon/irrigation-server/internal/jobs"
	"github.com/KyleBrandon/irrigation-server/services/valve"
	"github.com/google/uuid"
)

const (
	// TickInterval drives the countdown and the virtual-zone hand-off.
	TickInterval = 1 * time.Second

	// PowerOffRevertDelay is how long after a rejected activation the
	// presentation state is settled back to inactive.
	PowerOffRevertDelay = 500 * time.Millisecond

	// jobGrace pads the countdown job timeout past the zone runtime so
	// the expiry tick always beats the context deadline.
	jobGrace = 5 * time.Second
)

var (
	ErrZoneNotFound   = errors.New("unknown zone")
	ErrZoneDisabled   = errors.New("zone is disabled")
	ErrPowerOff       = errors.New("system power is off")
	ErrInvalidRuntime = errors.New("runtime out of range")
)

type SessionStore interface {
	StartZoneSession(ctx context.Context, arg database.StartZoneSessionParams) (database.ZoneSession, error)
	FinishZoneSession(ctx context.Context, arg database.FinishZoneSessionParams) (database.ZoneSession, error)
}

// PowerSource is the system power flag, owned by the power scheduler.
type PowerSource interface {
	IsPowerOn() bool
}

// Zone is one schedulable irrigation unit. A single valve makes a
// physical zone; several valves make a virtual zone whose valves run
// sequentially, each for an equal slice of the total runtime.
type Zone struct {
	ID string

	mu      sync.Mutex
	name    string
	enabled bool
	runtime time.Duration
	valves  []*valve.Valve

	active       bool
	sessionID    uuid.UUID
	currentValve int
	startTime    time.Time
	endTime      time.Time
	// sessionRuntime is the runtime the running session started with; a
	// runtime edit mid-run changes z.runtime for the next activation but
	// never the in-flight slice schedule.
	sessionRuntime time.Duration
	remaining      time.Duration
	volumeL        float64
}

// Controller owns every zone and enforces the single-active-zone policy.
type Controller struct {
	zones      map[string]*Zone
	order      []string
	manager    *jobs.JobManager
	events     *bus.Bus
	store      SessionStore
	power      PowerSource
	maxRuntime time.Duration
	maxActive  int
	now        func() time.Time
}

type Status struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Enabled          bool    `json:"enabled"`
	RuntimeSeconds   int     `json:"runtime_seconds"`
	ValveCount       int     `json:"valve_count"`
	Active           bool    `json:"active"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	VolumeL          float64 `json:"volume_l"`
}

// UpdateZoneParams carries a configuration edit; nil fields are left
// untouched.
type UpdateZoneParams struct {
	Name           *string `json:"name,omitempty"`
	Enabled        *bool   `json:"enabled,omitempty"`
	RuntimeSeconds *int    `json:"runtime_seconds,omitempty"`
}
