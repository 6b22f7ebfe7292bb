package power

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
)

// PauseCheckInterval is how often an armed pause is compared against the
// clock.
const PauseCheckInterval = 5 * time.Second

type StateStore interface {
	SaveSystemState(ctx context.Context, arg database.SaveSystemStateParams) (database.SystemState, error)
	GetSystemState(ctx context.Context) (database.SystemState, error)
}

// ZoneStopper gracefully deactivates every running zone; implemented by
// the zone controller.
type ZoneStopper interface {
	StopAll()
}

// Scheduler owns the system power flag and the timed pause. A pause is a
// future unix timestamp; when the clock reaches it, power is forced back
// on exactly once and the pause cleared.
type Scheduler struct {
	events *bus.Bus
	store  StateStore
	now    func() time.Time

	mu         sync.Mutex
	zones      ZoneStopper
	powerOn    bool
	pauseUntil int64
}
