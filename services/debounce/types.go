package debounce

import (
	"sync"
	"time"
)

const (
	// Window is how long after the first request the batch stays open.
	// A voice command fans out into near-simultaneous pushes; anything
	// inside the window belongs to the same intent.
	Window = 500 * time.Millisecond

	// RevertDelay is how long after the batch resolves before suppressed
	// zone controls are settled back to inactive.
	RevertDelay = 500 * time.Millisecond
)

type RequestKind int

const (
	RequestSystem RequestKind = iota
	RequestZone
)

type Request struct {
	Kind   RequestKind
	ZoneID string
}

// Plan is the resolution of a batch: requests to execute, in arrival
// order, and suppressed zone requests whose presentation state needs a
// cosmetic revert.
type Plan struct {
	Execute []Request
	Revert  []Request
}

// Executor is the surface the debouncer drives once a batch resolves.
type Executor interface {
	ActivateZone(id string) error
	PowerOn()
	RevertZone(id string)
	EnabledZoneCount() int
}

// Debouncer coalesces bursts of activation requests into the minimal set
// of actions that should actually run.
type Debouncer struct {
	executor    Executor
	window      time.Duration
	revertDelay time.Duration

	mu    sync.Mutex
	batch []Request
	timer *time.Timer
}
