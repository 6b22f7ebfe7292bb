// Package database is the persistence sink for the irrigation controller:
// valve and leak event history, zone watering sessions, and the system
// state snapshot. The scheduling core never depends on it being reachable;
// callers treat every write as best effort.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

type CreateValveEventParams struct {
	ValveID   string
	ZoneID    string
	Opened    bool
	VolumeL   float64
	DurationS float64
}

func (q *Queries) CreateValveEvent(ctx context.Context, arg CreateValveEventParams) (ValveEvent, error) {
	event := ValveEvent{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		ValveID:   arg.ValveID,
		ZoneID:    arg.ZoneID,
		Opened:    arg.Opened,
		VolumeL:   arg.VolumeL,
		DurationS: arg.DurationS,
	}

	const query = `
		INSERT INTO valve_events (id, created_at, valve_id, zone_id, opened, volume_l, duration_s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := q.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.ValveID, event.ZoneID, event.Opened, event.VolumeL, event.DurationS)

	return event, err
}

func (q *Queries) CreateLeakDetected(ctx context.Context, detectedAt time.Time) (LeakEvent, error) {
	event := LeakEvent{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
		DetectedAt: detectedAt,
	}

	const query = `
		INSERT INTO leak_events (id, created_at, updated_at, detected_at)
		VALUES ($1, $2, $3, $4)`

	_, err := q.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.UpdatedAt, event.DetectedAt)

	return event, err
}

func (q *Queries) UpdateLeakCleared(ctx context.Context, id uuid.UUID) (LeakEvent, error) {
	const query = `
		UPDATE leak_events
		SET updated_at = now(), cleared_at = now()
		WHERE id = $1
		RETURNING id, created_at, updated_at, detected_at, cleared_at`

	var event LeakEvent
	row := q.db.QueryRowContext(ctx, query, id)
	err := row.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt, &event.DetectedAt, &event.ClearedAt)

	return event, err
}

func (q *Queries) GetLatestLeak(ctx context.Context) (LeakEvent, error) {
	const query = `
		SELECT id, created_at, updated_at, detected_at, cleared_at
		FROM leak_events
		ORDER BY detected_at DESC
		LIMIT 1`

	var event LeakEvent
	row := q.db.QueryRowContext(ctx, query)
	err := row.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt, &event.DetectedAt, &event.ClearedAt)

	return event, err
}

type StartZoneSessionParams struct {
	ID        uuid.UUID
	ZoneID    string
	StartTime time.Time
}

func (q *Queries) StartZoneSession(ctx context.Context, arg StartZoneSessionParams) (ZoneSession, error) {
	session := ZoneSession{
		ID:        arg.ID,
		ZoneID:    arg.ZoneID,
		StartTime: arg.StartTime,
	}

	const query = `
		INSERT INTO zone_sessions (id, zone_id, start_time)
		VALUES ($1, $2, $3)`

	_, err := q.db.ExecContext(ctx, query, session.ID, session.ZoneID, session.StartTime)

	return session, err
}

type FinishZoneSessionParams struct {
	ID        uuid.UUID
	EndTime   time.Time
	VolumeL   float64
	DurationS float64
}

func (q *Queries) FinishZoneSession(ctx context.Context, arg FinishZoneSessionParams) (ZoneSession, error) {
	const query = `
		UPDATE zone_sessions
		SET end_time = $2, volume_l = $3, duration_s = $4
		WHERE id = $1
		RETURNING id, zone_id, start_time, end_time, volume_l, duration_s`

	var session ZoneSession
	row := q.db.QueryRowContext(ctx, query, arg.ID, arg.EndTime, arg.VolumeL, arg.DurationS)
	err := row.Scan(&session.ID, &session.ZoneID, &session.StartTime, &session.EndTime, &session.VolumeL, &session.DurationS)

	return session, err
}

type SaveSystemStateParams struct {
	PowerOn    bool
	PauseUntil int64
}

func (q *Queries) SaveSystemState(ctx context.Context, arg SaveSystemStateParams) (SystemState, error) {
	state := SystemState{
		ID:         1,
		UpdatedAt:  time.Now().UTC(),
		PowerOn:    arg.PowerOn,
		PauseUntil: arg.PauseUntil,
	}

	const query = `
		INSERT INTO system_state (id, updated_at, power_on, pause_until)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET updated_at = EXCLUDED.updated_at,
		    power_on = EXCLUDED.power_on,
		    pause_until = EXCLUDED.pause_until`

	_, err := q.db.ExecContext(ctx, query, state.UpdatedAt, state.PowerOn, state.PauseUntil)

	return state, err
}

func (q *Queries) GetSystemState(ctx context.Context) (SystemState, error) {
	const query = `
		SELECT id, updated_at, power_on, pause_until
		FROM system_state
		WHERE id = 1`

	var state SystemState
	row := q.db.QueryRowContext(ctx, query)
	err := row.Scan(&state.ID, &state.UpdatedAt, &state.PowerOn, &state.PauseUntil)

	return state, err
}
