package valve

import (
	"context"
	"sync"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/internal/database"
	"github.com/KyleBrandon/irrigation-server/internal/gpio"
)

type EventStore interface {
	CreateValveEvent(ctx context.Context, arg database.CreateValveEventParams) (database.ValveEvent, error)
}

// Valve owns one relay output. While open it accumulates the volume of
// every flow sample published on the bus; the total is reported once in
// the CLOSED event and then reset.
type Valve struct {
	ID     string
	ZoneID string
	Pin    int

	hardware gpio.Controller
	events   *bus.Bus
	store    EventStore
	now      func() time.Time

	mu       sync.Mutex
	openedAt *time.Time
	volumeL  float64
}
