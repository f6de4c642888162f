package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

// ErrInvalidGeozone wraps validation failures of a GeozoneInput.
var ErrInvalidGeozone = errors.New("invalid geozone")

// PointInput is one geozone point as submitted by a client.
type PointInput struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// GeozoneInput is the writable part of a geozone.
type GeozoneInput struct {
	ID             string       `json:"id,omitempty" yaml:"id" validate:"omitempty,uuid"`
	AccountID      string       `json:"account_id" yaml:"account_id" validate:"required,max=64"`
	Description    string       `json:"description" yaml:"description" validate:"max=256"`
	Points         []PointInput `json:"points" yaml:"points" validate:"required,min=1,max=6,dive"`
	RadiusMeters   float64      `json:"radius_meters" yaml:"radius_meters"`
	Priority       int          `json:"priority" yaml:"priority" validate:"gte=0,lte=5"`
	ReverseGeocode bool         `json:"reverse_geocode" yaml:"reverse_geocode"`
	ArriveNotify   bool         `json:"arrive_notify" yaml:"arrive_notify"`
	DepartNotify   bool         `json:"depart_notify" yaml:"depart_notify"`
	ClientUploadID int          `json:"client_upload_id,omitempty" yaml:"client_upload_id" validate:"gte=0"`
}

// GeozoneOptions configures a GeozoneService.
type GeozoneOptions struct {
	Policy     domain.RadiusPolicy
	Sphere     geospatial.Sphere
	CircleStep float64
	CacheTTL   int // seconds
}

// GeozoneService handles geozone business logic.
type GeozoneService struct {
	zones     ports.GeozoneRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
	opts      GeozoneOptions
	validate  *validator.Validate
	now       func() time.Time
}

// NewGeozoneService creates a new GeozoneService. cache and publisher may be nil.
func NewGeozoneService(
	zones ports.GeozoneRepository,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	opts GeozoneOptions,
) *GeozoneService {
	if opts.Policy == (domain.RadiusPolicy{}) {
		opts.Policy = domain.DefaultRadiusPolicy
	}
	if opts.Sphere.RadiusMeters <= 0 {
		opts.Sphere = geospatial.Earth
	}
	if opts.CircleStep <= 0 {
		opts.CircleStep = geospatial.DefaultCircleStep
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 600
	}
	return &GeozoneService{
		zones:     zones,
		cache:     cache,
		publisher: publisher,
		opts:      opts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
}

// Policy returns the radius policy applied to every write.
func (s *GeozoneService) Policy() domain.RadiusPolicy {
	return s.opts.Policy
}

// Create validates in, assigns a new ID and stores the zone.
func (s *GeozoneService) Create(ctx context.Context, in GeozoneInput) (*domain.Geozone, error) {
	in.ID = ""
	zone, err := s.build(in)
	if err != nil {
		return nil, err
	}
	zone.ID = uuid.NewString()
	if err := s.store(ctx, zone); err != nil {
		return nil, err
	}
	return zone, nil
}

// Update replaces the zone with the given ID. An unknown ID is reported as
// domain.ErrNotFound before the input is validated.
func (s *GeozoneService) Update(ctx context.Context, id string, in GeozoneInput) (*domain.Geozone, error) {
	if _, err := s.zones.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("get geozone %s: %w", id, err)
	}
	in.ID = id
	zone, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, zone); err != nil {
		return nil, err
	}
	return zone, nil
}

// Save stores an already-built zone, clamping its radius. EditSession uses
// it to persist the editor state. The zone passes the same checks as Create.
func (s *GeozoneService) Save(ctx context.Context, zone *domain.Geozone) error {
	if err := s.validate.Struct(inputOf(zone)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeozone, err)
	}
	if zone.ID == "" {
		zone.ID = uuid.NewString()
	}
	zone.RadiusMeters = s.opts.Policy.Clamp(zone.RadiusMeters)
	return s.store(ctx, zone)
}

// Get returns a zone, reading through the cache.
func (s *GeozoneService) Get(ctx context.Context, id string) (*domain.Geozone, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGeozoneGet, attribute.String("geozone.id", id))
	defer span.End()

	cacheKey := geozoneCacheKey(id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var zone domain.Geozone
			if err := json.Unmarshal(data, &zone); err == nil {
				metrics.CacheHits.WithLabelValues("geozone").Inc()
				return &zone, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geozone").Inc()
	}

	zone, err := s.zones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(zone); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.opts.CacheTTL)
		}
	}
	return zone, nil
}

// List returns one page of an account's zones and the total count.
func (s *GeozoneService) List(ctx context.Context, accountID string, offset, limit int) ([]domain.Geozone, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.zones.List(ctx, accountID, offset, limit)
}

// Delete removes a zone and announces the removal.
func (s *GeozoneService) Delete(ctx context.Context, id string) error {
	zone, err := s.zones.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get geozone %s: %w", id, err)
	}
	if err := s.zones.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete geozone %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	s.publish(ctx, &domain.GeozoneChange{
		Kind:      domain.ChangeDeleted,
		ZoneID:    id,
		AccountID: zone.AccountID,
		At:        s.now(),
	})
	return nil
}

// Containing returns the zones with a point whose circle contains p.
func (s *GeozoneService) Containing(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.Geozone, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: point %v out of range", ErrInvalidGeozone, p)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	candidates, err := s.zones.FindContaining(ctx, p, limit)
	if err != nil {
		return nil, fmt.Errorf("find containing: %w", err)
	}
	// The repository filters on its own distance model; re-check on ours.
	out := candidates[:0]
	for _, z := range candidates {
		if s.contains(&z, p) {
			out = append(out, z)
		}
	}
	return out, nil
}

// Circles returns the circle polygon of every set point of a zone, keyed by
// point index.
func (s *GeozoneService) Circles(ctx context.Context, id string, step float64) (map[int][]domain.GeoPoint, error) {
	zone, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		step = s.opts.CircleStep
	}
	out := make(map[int][]domain.GeoPoint)
	for _, i := range zone.ActivePoints() {
		out[i] = s.opts.Sphere.Circle(zone.Points[i], zone.RadiusMeters, step)
	}
	return out, nil
}

// ApplyBatch upserts every input, continuing past failures. Inputs with an ID
// update that zone; inputs without one are created.
func (s *GeozoneService) ApplyBatch(ctx context.Context, inputs []GeozoneInput) *domain.BatchReport {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGeozoneBatch, attribute.Int("batch.size", len(inputs)))
	defer span.End()

	report := domain.NewBatchReport("apply_geozones")
	for i, in := range inputs {
		key := in.ID
		if key == "" {
			key = in.Description
		}
		zone, err := s.build(in)
		if err == nil {
			if zone.ID == "" {
				zone.ID = uuid.NewString()
			}
			err = s.store(ctx, zone)
		}
		report.Record(i, key, err)
	}
	if !report.OK() {
		slog.WarnContext(ctx, "geozone batch had failures",
			"total", report.Total,
			"failed", len(report.Failures),
		)
	}
	metrics.ObserveBatch(report.Operation, len(report.Failures))
	return report
}

func (s *GeozoneService) build(in GeozoneInput) (*domain.Geozone, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeozone, err)
	}

	points := make([]domain.GeoPoint, domain.MaxZonePoints)
	for i, p := range in.Points {
		points[i] = domain.GeoPoint{Lat: p.Lat, Lon: p.Lon}
	}
	zone := &domain.Geozone{
		ID:             in.ID,
		AccountID:      in.AccountID,
		Description:    in.Description,
		Points:         points,
		RadiusMeters:   s.opts.Policy.Clamp(in.RadiusMeters),
		Priority:       in.Priority,
		ReverseGeocode: in.ReverseGeocode,
		ArriveNotify:   in.ArriveNotify,
		DepartNotify:   in.DepartNotify,
		ClientUploadID: in.ClientUploadID,
	}
	if len(zone.ActivePoints()) == 0 {
		return nil, fmt.Errorf("%w: at least one point must be set", ErrInvalidGeozone)
	}
	return zone, nil
}

// inputOf is the writable view of zone with only its set points. The ID is
// left out since stored zones carry whatever ID their repository assigned.
func inputOf(zone *domain.Geozone) GeozoneInput {
	in := GeozoneInput{
		AccountID:      zone.AccountID,
		Description:    zone.Description,
		RadiusMeters:   zone.RadiusMeters,
		Priority:       zone.Priority,
		ReverseGeocode: zone.ReverseGeocode,
		ArriveNotify:   zone.ArriveNotify,
		DepartNotify:   zone.DepartNotify,
		ClientUploadID: zone.ClientUploadID,
	}
	for _, i := range zone.ActivePoints() {
		in.Points = append(in.Points, PointInput{Lat: zone.Points[i].Lat, Lon: zone.Points[i].Lon})
	}
	return in
}

func (s *GeozoneService) store(ctx context.Context, zone *domain.Geozone) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGeozoneSave, attribute.String("geozone.id", zone.ID))
	defer span.End()

	zone.UpdatedAt = s.now()
	if err := s.zones.Upsert(ctx, zone); err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert geozone %s: %w", zone.ID, err)
	}
	s.invalidate(ctx, zone.ID)
	s.publish(ctx, &domain.GeozoneChange{
		Kind:      domain.ChangeUpserted,
		ZoneID:    zone.ID,
		AccountID: zone.AccountID,
		Zone:      zone.Clone(),
		At:        zone.UpdatedAt,
	})
	return nil
}

func (s *GeozoneService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, geozoneCacheKey(id))
	}
}

// publish is best-effort: the zone is already stored.
func (s *GeozoneService) publish(ctx context.Context, change *domain.GeozoneChange) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishGeozoneChange(ctx, change); err != nil {
		slog.WarnContext(ctx, "publish geozone change failed", "zone_id", change.ZoneID, "error", err)
	}
}

func (s *GeozoneService) contains(z *domain.Geozone, p domain.GeoPoint) bool {
	for _, i := range z.ActivePoints() {
		if z.Spec(i, false).Contains(s.opts.Sphere.Distance(z.Points[i], p)) {
			return true
		}
	}
	return false
}

func geozoneCacheKey(id string) string {
	return "geozones:id:" + id
}
