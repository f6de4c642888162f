package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/trackzone/internal/adapters/geocode"
	"github.com/samirrijal/trackzone/internal/adapters/memcache"
	natsadapter "github.com/samirrijal/trackzone/internal/adapters/nats"
	"github.com/samirrijal/trackzone/internal/adapters/postgres"
	"github.com/samirrijal/trackzone/internal/adapters/valkey"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/config"
	"github.com/samirrijal/trackzone/internal/pkg/logging"
	"github.com/samirrijal/trackzone/internal/workflows"
)

func main() {
	cfg, err := config.Load("trackzone-geoworker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "trackzone-geoworker")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		logging.Fatal("db", "error", err)
	}
	defer db.Close()

	var cache ports.CacheService
	if vk, err := valkey.New(cfg.Valkey.Addr, "trackzone:"); err != nil {
		slog.Warn("valkey unavailable, using in-process cache", "error", err)
		cache = memcache.New(cfg.Valkey.LocalSize, cfg.Geocode.CacheTTL)
	} else {
		defer vk.Close()
		cache = vk
	}

	// Imported zones are announced like any other edit so fence monitors pick them up.
	var publisher ports.EventPublisher
	if codec, err := natsadapter.CodecFor(cfg.NATS.Encoding); err != nil {
		logging.Fatal("nats codec", "error", err)
	} else if pub, err := natsadapter.NewPublisher(cfg.NATS.URL, codec); err != nil {
		slog.Warn("nats unavailable, imports will not be announced", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	geocoder, err := geocode.NewClient(geocode.Options{
		Endpoint:   cfg.Geocode.Endpoint,
		Timeout:    cfg.Geocode.Timeout,
		RatePerSec: cfg.Geocode.RatePerSec,
	})
	if err != nil {
		logging.Fatal("geocode client", "error", err)
	}

	zones := usecases.NewGeozoneService(postgres.NewGeozoneRepo(db), cache, publisher, usecases.GeozoneOptions{
		Policy:     cfg.Geozone.Policy(),
		Sphere:     cfg.Geozone.Sphere(),
		CircleStep: cfg.Geozone.CircleStep,
	})

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		logging.Fatal("temporal client", "error", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		// The geocoder is rate limited; more concurrent activities only queue on it.
		MaxConcurrentActivityExecutionSize: 8,
	})

	w.RegisterWorkflow(workflows.GeozoneImportWorkflow)
	w.RegisterActivity(&workflows.ImportActivities{
		Geocoder: usecases.NewGeocodeService(geocoder, cache, cfg.Geocode.CacheTTL),
		Zones:    zones,
	})

	slog.Info("geozone import worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logging.Fatal("worker", "error", err)
	}
}
