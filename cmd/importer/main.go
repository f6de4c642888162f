package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/trackzone/internal/adapters/geocode"
	natsadapter "github.com/samirrijal/trackzone/internal/adapters/nats"
	"github.com/samirrijal/trackzone/internal/adapters/postgres"
	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/config"
	"github.com/samirrijal/trackzone/internal/pkg/logging"
	"github.com/samirrijal/trackzone/internal/workflows"
)

func main() {
	direct := flag.Bool("direct", false, "store zones in-process instead of starting the import workflow")
	wait := flag.Bool("wait", true, "wait for the workflow and print its report")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-direct] [-wait=false] manifest.yaml\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load("trackzone-importer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "trackzone-importer")

	manifestPath := "manifest.yaml"
	if flag.NArg() > 0 {
		manifestPath = flag.Arg(0)
	}
	f, err := os.Open(manifestPath)
	if err != nil {
		logging.Fatal("open manifest", "error", err)
	}
	manifest, err := ParseManifest(f)
	f.Close()
	if err != nil {
		logging.Fatal("parse manifest", "path", manifestPath, "error", err)
	}
	if manifest.Source == "" {
		manifest.Source = manifestPath
	}

	ctx := context.Background()
	slog.Info("importing geozones", "source", manifest.Source, "items", len(manifest.Items), "direct", *direct)

	if *direct {
		report := runDirect(ctx, cfg, manifest)
		printReport(report)
		if !report.OK() {
			os.Exit(2)
		}
		return
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logging.Fatal("temporal client", "error", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("geozone-import-%s-%d", manifest.Source, time.Now().Unix()),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.GeozoneImportWorkflow, workflows.ImportInput{
		Source: manifest.Source,
		Items:  manifest.Items,
	})
	if err != nil {
		logging.Fatal("start import workflow", "error", err)
	}
	slog.Info("import workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	if !*wait {
		return
	}

	var report workflows.ImportReport
	if err := run.Get(ctx, &report); err != nil {
		logging.Fatal("import workflow failed", "workflow_id", run.GetID(), "error", err)
	}
	printReport(&report)
	if !report.OK() {
		os.Exit(2)
	}
}

// runDirect stores the manifest without Temporal, publishing changes when
// NATS is reachable.
func runDirect(ctx context.Context, cfg *config.Config, m *Manifest) *domain.BatchReport {
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		logging.Fatal("db", "error", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	if codec, err := natsadapter.CodecFor(cfg.NATS.Encoding); err == nil {
		if pub, err := natsadapter.NewPublisher(cfg.NATS.URL, codec); err != nil {
			slog.Warn("nats unavailable, imports will not be announced", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	geocoder, err := geocode.NewClient(geocode.Options{
		Endpoint:   cfg.Geocode.Endpoint,
		Timeout:    cfg.Geocode.Timeout,
		RatePerSec: cfg.Geocode.RatePerSec,
	})
	if err != nil {
		logging.Fatal("geocode client", "error", err)
	}

	zones := usecases.NewGeozoneService(postgres.NewGeozoneRepo(db), nil, publisher, usecases.GeozoneOptions{
		Policy:     cfg.Geozone.Policy(),
		Sphere:     cfg.Geozone.Sphere(),
		CircleStep: cfg.Geozone.CircleStep,
	})
	lookup := usecases.NewGeocodeService(geocoder, nil, cfg.Geocode.CacheTTL)
	return importDirect(ctx, m, lookup, zones)
}

func printReport(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
