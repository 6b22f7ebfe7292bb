package leak

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/google/uuid"
)

const (
	// Window is the trailing span of flow samples the heuristic sees.
	Window = 30 * time.Second

	// Threshold is the non-zero sample fraction that raises suspicion.
	Threshold = 0.80

	// CloseSettleTime is how long after a valve closes before flow is
	// trusted again; residual pipe drainage shows up inside it.
	CloseSettleTime = 10 * time.Second
)

type LeakStore interface {
	CreateLeakDetected(ctx context.Context, detectedAt time.Time) (database.LeakEvent, error)
	UpdateLeakCleared(ctx context.Context, id uuid.UUID) (database.LeakEvent, error)
	GetLatestLeak(ctx context.Context) (database.LeakEvent, error)
}

// Detector watches the flow sample stream for water moving while no zone
// is intentionally running. It is independent of the scheduling state
// machine; it only counts zone start/stop events.
type Detector struct {
	events *bus.Bus
	store  LeakStore

	mu            sync.Mutex
	samples       []bus.FlowSample
	suspected     bool
	lastClose     time.Time
	activeZones   int
	currentLeakID uuid.UUID
}
