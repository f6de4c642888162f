package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
)

// ImportItem is one zone of an import manifest. Items without points are
// placed on their geocoded address.
type ImportItem struct {
	Address string                `json:"address,omitempty" yaml:"address"`
	Country string                `json:"country,omitempty" yaml:"country"`
	Zone    usecases.GeozoneInput `json:"zone" yaml:"zone"`
}

func (it ImportItem) key() string {
	switch {
	case it.Zone.ID != "":
		return it.Zone.ID
	case it.Zone.Description != "":
		return it.Zone.Description
	default:
		return it.Address
	}
}

// ImportInput is the input for the import workflow.
type ImportInput struct {
	Source string       `json:"source"`
	Items  []ImportItem `json:"items"`
}

// ImportReport is the batch report of an import plus the IDs of stored zones.
type ImportReport struct {
	domain.BatchReport
	IDs []string `json:"ids"`
}

// GeozoneImportWorkflow geocodes and stores every item of a manifest. A
// failing item is recorded in the report and the import moves on.
func GeozoneImportWorkflow(ctx workflow.Context, input ImportInput) (*ImportReport, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting geozone import", "source", input.Source, "items", len(input.Items))

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	report := &ImportReport{BatchReport: *domain.NewBatchReport("import_geozones")}
	for i, item := range input.Items {
		zone := item.Zone

		// Step 1: place address-only items
		if len(zone.Points) == 0 && item.Address != "" {
			var p domain.GeoPoint
			if err := workflow.ExecuteActivity(ctx, ActivityGeocodeAddress, item.Address, item.Country).Get(ctx, &p); err != nil {
				report.Record(i, item.key(), fmt.Errorf("geocode: %w", err))
				continue
			}
			zone.Points = []usecases.PointInput{{Lat: p.Lat, Lon: p.Lon}}
		}

		// Step 2: store
		var id string
		err := workflow.ExecuteActivity(ctx, ActivitySaveGeozone, zone).Get(ctx, &id)
		report.Record(i, item.key(), err)
		if err == nil {
			report.IDs = append(report.IDs, id)
		}
	}

	if !report.OK() {
		logger.Warn("Geozone import had failures", "failed", len(report.Failures), "total", report.Total)
	}
	logger.Info("Geozone import finished", "stored", len(report.IDs))
	return report, nil
}
