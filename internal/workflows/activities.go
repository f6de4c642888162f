package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
)

// Activity names as registered on the worker.
const (
	ActivityGeocodeAddress = "GeocodeAddress"
	ActivitySaveGeozone    = "SaveGeozone"
)

// ZoneWriter creates and updates geozones. GeozoneService implements it.
type ZoneWriter interface {
	Create(ctx context.Context, in usecases.GeozoneInput) (*domain.Geozone, error)
	Update(ctx context.Context, id string, in usecases.GeozoneInput) (*domain.Geozone, error)
}

// ImportActivities holds the activity implementations for the import workflow.
type ImportActivities struct {
	Geocoder usecases.AddressLookup
	Zones    ZoneWriter
}

// GeocodeAddress resolves an item's address. An address without a result is
// not retried.
func (a *ImportActivities) GeocodeAddress(ctx context.Context, addr, country string) (domain.GeoPoint, error) {
	p, ok, err := a.Geocoder.Lookup(ctx, addr, country)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("geocode %q: %w", addr, err)
	}
	if !ok {
		return domain.GeoPoint{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no geocode result for %q", addr), "NoGeocodeResult", nil)
	}
	return p, nil
}

// SaveGeozone creates the zone, or updates it when the input carries an ID.
// Validation failures are not retried.
func (a *ImportActivities) SaveGeozone(ctx context.Context, in usecases.GeozoneInput) (string, error) {
	var (
		zone *domain.Geozone
		err  error
	)
	if in.ID != "" {
		zone, err = a.Zones.Update(ctx, in.ID, in)
	} else {
		zone, err = a.Zones.Create(ctx, in)
	}
	switch {
	case errors.Is(err, usecases.ErrInvalidGeozone), errors.Is(err, domain.ErrNotFound):
		return "", temporal.NewNonRetryableApplicationError(err.Error(), "InvalidGeozone", err)
	case err != nil:
		return "", err
	}
	slog.InfoContext(ctx, "imported geozone", "zone_id", zone.ID, "account_id", zone.AccountID)
	return zone.ID, nil
}
