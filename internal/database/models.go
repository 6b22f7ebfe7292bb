package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type ValveEvent struct {
	ID        uuid.UUID
	CreatedAt time.Time
	ValveID   string
	ZoneID    string
	Opened    bool
	VolumeL   float64
	DurationS float64
}

type LeakEvent struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DetectedAt time.Time
	ClearedAt  sql.NullTime
}

type ZoneSession struct {
	ID        uuid.UUID
	ZoneID    string
	StartTime time.Time
	EndTime   sql.NullTime
	VolumeL   float64
	DurationS float64
}

// SystemState is the single-row whole-of-state snapshot written back
// after every mutation.
type SystemState struct {
	ID         int32
	UpdatedAt  time.Time
	PowerOn    bool
	PauseUntil int64
}
