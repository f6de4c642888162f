package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

// GeocodeService resolves addresses through a Geocoder with a read-through cache.
type GeocodeService struct {
	geocoder ports.Geocoder
	cache    ports.CacheService
	ttl      time.Duration
}

// NewGeocodeService creates a new GeocodeService. cache may be nil.
func NewGeocodeService(geocoder ports.Geocoder, cache ports.CacheService, ttl time.Duration) *GeocodeService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &GeocodeService{geocoder: geocoder, cache: cache, ttl: ttl}
}

// Lookup geocodes addr. ok is false when nothing usable was found; a (0,0)
// answer counts as nothing.
func (s *GeocodeService) Lookup(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
	addr = strings.TrimSpace(addr)
	country = strings.TrimSpace(country)
	if addr == "" {
		return domain.GeoPoint{}, false, nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGeocode,
		attribute.String("geocode.addr", addr),
		attribute.String("geocode.country", country),
	)
	defer span.End()

	cacheKey := fmt.Sprintf("geocode:%s:%s", normalizeQuery(country), normalizeQuery(addr))
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.GeoPoint
			if err := json.Unmarshal(data, &p); err == nil && !p.IsUnset() {
				metrics.GeocodeLookups.WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("geocode.cached", true))
				return p, true, nil
			}
		}
	}

	start := time.Now()
	p, ok, err := s.geocoder.Geocode(ctx, addr, country)
	metrics.GeocodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "geocode failed")
		return domain.GeoPoint{}, false, fmt.Errorf("geocode %q: %w", addr, err)
	}
	if !ok || p.IsUnset() || !p.IsValid() {
		metrics.GeocodeLookups.WithLabelValues("empty").Inc()
		return domain.GeoPoint{}, false, nil
	}
	metrics.GeocodeLookups.WithLabelValues("miss").Inc()

	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, int(s.ttl/time.Second))
		}
	}
	return p, true, nil
}

// normalizeQuery lowercases q and collapses runs of whitespace.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
