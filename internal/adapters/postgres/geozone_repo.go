package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

const geozoneColumns = `
	id, account_id, description, radius_meters, priority,
	reverse_geocode, arrive_notify, depart_notify, client_upload_id, updated_at`

// GeozoneRepo implements ports.GeozoneRepository with pgx. Set points live
// in geozone_points, one row per slot; unset slots have no row.
type GeozoneRepo struct {
	db *DB
}

// NewGeozoneRepo creates a new GeozoneRepo.
func NewGeozoneRepo(db *DB) *GeozoneRepo {
	return &GeozoneRepo{db: db}
}

// Upsert writes the zone and replaces its points in one transaction.
func (r *GeozoneRepo) Upsert(ctx context.Context, z *domain.Geozone) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO geozones (id, account_id, description, radius_meters, priority,
			                      reverse_geocode, arrive_notify, depart_notify, client_upload_id, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE
			SET account_id = EXCLUDED.account_id, description = EXCLUDED.description,
			    radius_meters = EXCLUDED.radius_meters, priority = EXCLUDED.priority,
			    reverse_geocode = EXCLUDED.reverse_geocode,
			    arrive_notify = EXCLUDED.arrive_notify, depart_notify = EXCLUDED.depart_notify,
			    client_upload_id = EXCLUDED.client_upload_id, updated_at = EXCLUDED.updated_at
		`, z.ID, z.AccountID, z.Description, z.RadiusMeters, z.Priority,
			z.ReverseGeocode, z.ArriveNotify, z.DepartNotify, z.ClientUploadID, z.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert geozone: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM geozone_points WHERE geozone_id = $1`, z.ID); err != nil {
			return fmt.Errorf("clear points: %w", err)
		}

		active := z.ActivePoints()
		if len(active) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, i := range active {
			p := z.Points[i]
			batch.Queue(`
				INSERT INTO geozone_points (geozone_id, idx, location)
				VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography)
			`, z.ID, i, p.Lon, p.Lat)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range active {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		return nil
	})
}

// GetByID returns a zone by UUID. An ID that is not a UUID cannot exist and
// returns domain.ErrNotFound without a query.
func (r *GeozoneRepo) GetByID(ctx context.Context, id string) (*domain.Geozone, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	zones, err := r.query(ctx, `SELECT `+geozoneColumns+` FROM geozones WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, domain.ErrNotFound
	}
	return &zones[0], nil
}

// List returns one page of an account's zones ordered by description.
func (r *GeozoneRepo) List(ctx context.Context, accountID string, offset, limit int) ([]domain.Geozone, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM geozones WHERE account_id = $1`, accountID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count geozones: %w", err)
	}

	zones, err := r.query(ctx, `
		SELECT `+geozoneColumns+`
		FROM geozones
		WHERE account_id = $1
		ORDER BY description, id
		OFFSET $2 LIMIT $3
	`, accountID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return zones, total, nil
}

// ListAll returns every zone.
func (r *GeozoneRepo) ListAll(ctx context.Context) ([]domain.Geozone, error) {
	return r.query(ctx, `SELECT `+geozoneColumns+` FROM geozones ORDER BY id`)
}

// Delete removes a zone; its points cascade.
func (r *GeozoneRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return domain.ErrNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM geozones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindContaining returns zones with a point whose radius reaches p, using the
// GiST index on geozone_points.location.
func (r *GeozoneRepo) FindContaining(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.Geozone, error) {
	return r.query(ctx, `
		SELECT `+geozoneColumns+`
		FROM geozones g
		WHERE EXISTS (
			SELECT 1 FROM geozone_points gp
			WHERE gp.geozone_id = g.id
			  AND ST_DWithin(gp.location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, g.radius_meters)
		)
		ORDER BY g.priority DESC, g.id
		LIMIT $3
	`, p.Lon, p.Lat, limit)
}

// query runs a geozones SELECT and attaches the points of every row.
func (r *GeozoneRepo) query(ctx context.Context, sql string, args ...any) ([]domain.Geozone, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []domain.Geozone
	for rows.Next() {
		var z domain.Geozone
		if err := rows.Scan(
			&z.ID, &z.AccountID, &z.Description, &z.RadiusMeters, &z.Priority,
			&z.ReverseGeocode, &z.ArriveNotify, &z.DepartNotify, &z.ClientUploadID, &z.UpdatedAt,
		); err != nil {
			return nil, err
		}
		z.Points = make([]domain.GeoPoint, domain.MaxZonePoints)
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return zones, nil
	}
	if err := r.attachPoints(ctx, zones); err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	return zones, nil
}

func (r *GeozoneRepo) attachPoints(ctx context.Context, zones []domain.Geozone) error {
	ids := make([]string, len(zones))
	byID := make(map[string]*domain.Geozone, len(zones))
	for i := range zones {
		ids[i] = zones[i].ID
		byID[zones[i].ID] = &zones[i]
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT geozone_id, idx,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon
		FROM geozone_points WHERE geozone_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			idx int
			p   domain.GeoPoint
		)
		if err := rows.Scan(&id, &idx, &p.Lat, &p.Lon); err != nil {
			return err
		}
		if z, ok := byID[id]; ok && idx >= 0 && idx < len(z.Points) {
			z.Points[idx] = p
		}
	}
	return rows.Err()
}

// isUUID accepts only the canonical 36-character form postgres also parses.
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
