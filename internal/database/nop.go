package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Nop satisfies every store interface in the services layer without a
// database connection. Running without DATABASE_URL drops event history
// but never the scheduling core.
type Nop struct{}

func (Nop) CreateValveEvent(_ context.Context, arg CreateValveEventParams) (ValveEvent, error) {
	return ValveEvent{ValveID: arg.ValveID, ZoneID: arg.ZoneID, Opened: arg.Opened}, nil
}

func (Nop) CreateLeakDetected(_ context.Context, detectedAt time.Time) (LeakEvent, error) {
	return LeakEvent{ID: uuid.New(), DetectedAt: detectedAt}, nil
}

func (Nop) UpdateLeakCleared(_ context.Context, id uuid.UUID) (LeakEvent, error) {
	return LeakEvent{ID: id}, nil
}

func (Nop) GetLatestLeak(_ context.Context) (LeakEvent, error) {
	return LeakEvent{}, nil
}

func (Nop) StartZoneSession(_ context.Context, arg StartZoneSessionParams) (ZoneSession, error) {
	return ZoneSession{ID: arg.ID, ZoneID: arg.ZoneID, StartTime: arg.StartTime}, nil
}

func (Nop) FinishZoneSession(_ context.Context, arg FinishZoneSessionParams) (ZoneSession, error) {
	return ZoneSession{ID: arg.ID}, nil
}

func (Nop) SaveSystemState(_ context.Context, arg SaveSystemStateParams) (SystemState, error) {
	return SystemState{ID: 1, PowerOn: arg.PowerOn, PauseUntil: arg.PauseUntil}, nil
}

func (Nop) GetSystemState(_ context.Context) (SystemState, error) {
	return SystemState{ID: 1, PowerOn: true}, nil
}
