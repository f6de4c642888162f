package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// TrackRepo implements ports.TrackRepository with pgx.
type TrackRepo struct {
	db *DB
}

// NewTrackRepo creates a new TrackRepo.
func NewTrackRepo(db *DB) *TrackRepo {
	return &TrackRepo{db: db}
}

const insertEvent = `
	INSERT INTO device_events (device_id, account_id, time, location, heading, speed_kph, status_code, address, metadata)
	VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6, $7, $8, $9, $10)
	ON CONFLICT (device_id, time) DO NOTHING
`

// Insert stores a single position. A repeated (device, time) pair is ignored.
func (r *TrackRepo) Insert(ctx context.Context, p *domain.DevicePosition) error {
	_, err := r.db.Pool.Exec(ctx, insertEvent,
		p.DeviceID, p.AccountID, p.Time, p.Location.Lon, p.Location.Lat,
		p.Heading, p.SpeedKPH, p.StatusCode, p.Address, p.Metadata)
	return err
}

// InsertBatch stores many positions using pgx.Batch.
func (r *TrackRepo) InsertBatch(ctx context.Context, positions []domain.DevicePosition) error {
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(insertEvent,
			p.DeviceID, p.AccountID, p.Time, p.Location.Lon, p.Location.Lat,
			p.Heading, p.SpeedKPH, p.StatusCode, p.Address, p.Metadata)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Range returns a device's positions in [from, to], oldest first.
func (r *TrackRepo) Range(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]domain.DevicePosition, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT device_id, account_id, time,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       heading, speed_kph, status_code, COALESCE(address, ''), COALESCE(metadata, '{}')
		FROM device_events
		WHERE device_id = $1 AND time BETWEEN $2 AND $3
		ORDER BY time
		LIMIT $4
	`, deviceID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DevicePosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Latest returns a device's most recent position.
func (r *TrackRepo) Latest(ctx context.Context, deviceID string) (*domain.DevicePosition, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT device_id, account_id, time,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       heading, speed_kph, status_code, COALESCE(address, ''), COALESCE(metadata, '{}')
		FROM device_events
		WHERE device_id = $1
		ORDER BY time DESC
		LIMIT 1
	`, deviceID)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func scanPosition(row pgx.Row) (domain.DevicePosition, error) {
	var p domain.DevicePosition
	err := row.Scan(
		&p.DeviceID, &p.AccountID, &p.Time,
		&p.Location.Lat, &p.Location.Lon,
		&p.Heading, &p.SpeedKPH, &p.StatusCode, &p.Address, &p.Metadata,
	)
	return p, err
}
