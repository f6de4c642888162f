package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/workflows"
)

// Manifest lists the geozones to import. Account and country apply to every
// item that does not set its own.
//
//	source: depots-2024
//	account_id: acme
//	country: ES
//	items:
//	  - address: Gran Via 1, Bilbao
//	    zone: {description: Bilbao depot, radius_meters: 300, arrive_notify: true}
//	  - zone:
//	      description: Port gate
//	      points: [{lat: 43.35, lon: -3.04}]
type Manifest struct {
	Source    string                 `yaml:"source"`
	AccountID string                 `yaml:"account_id"`
	Country   string                 `yaml:"country"`
	Items     []workflows.ImportItem `yaml:"items"`
}

// ParseManifest decodes a YAML manifest, rejecting unknown fields, and fills
// in the manifest-level defaults.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Items) == 0 {
		return nil, fmt.Errorf("manifest has no items")
	}

	var problems []string
	for i := range m.Items {
		it := &m.Items[i]
		if it.Zone.AccountID == "" {
			it.Zone.AccountID = m.AccountID
		}
		if it.Country == "" {
			it.Country = m.Country
		}
		if len(it.Zone.Points) == 0 && strings.TrimSpace(it.Address) == "" {
			problems = append(problems, fmt.Sprintf("item %d: needs points or an address", i))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid manifest:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return &m, nil
}

// zoneBatcher is the part of GeozoneService the direct import uses.
type zoneBatcher interface {
	ApplyBatch(ctx context.Context, inputs []usecases.GeozoneInput) *domain.BatchReport
}

// importDirect places address-only items with lookup and stores everything
// through one ApplyBatch call. Failure indexes refer to manifest items.
func importDirect(ctx context.Context, m *Manifest, lookup usecases.AddressLookup, zones zoneBatcher) *domain.BatchReport {
	report := domain.NewBatchReport("import_geozones")

	var (
		inputs []usecases.GeozoneInput
		index  []int
	)
	for i, it := range m.Items {
		zone := it.Zone
		if len(zone.Points) == 0 {
			p, ok, err := lookup.Lookup(ctx, it.Address, it.Country)
			switch {
			case err != nil:
				report.Record(i, itemKey(it), fmt.Errorf("geocode: %w", err))
				continue
			case !ok:
				report.Record(i, itemKey(it), fmt.Errorf("geocode: no result for %q", it.Address))
				continue
			}
			zone.Points = []usecases.PointInput{{Lat: p.Lat, Lon: p.Lon}}
		}
		inputs = append(inputs, zone)
		index = append(index, i)
	}
	if len(inputs) == 0 {
		return report
	}

	stored := zones.ApplyBatch(ctx, inputs)
	for j := range stored.Failures {
		stored.Failures[j].Index = index[stored.Failures[j].Index]
	}
	report.Merge(stored)
	return report
}

func itemKey(it workflows.ImportItem) string {
	switch {
	case it.Zone.ID != "":
		return it.Zone.ID
	case it.Zone.Description != "":
		return it.Zone.Description
	default:
		return it.Address
	}
}
