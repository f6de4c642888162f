package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/trackzone/internal/adapters/nats"
	"github.com/samirrijal/trackzone/internal/adapters/postgres"
	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/config"
	"github.com/samirrijal/trackzone/internal/pkg/logging"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

// fencewatch consumes the position stream, detects geofence crossings and
// publishes arrive/depart events. Zone edits arrive on the geozone change
// stream; a full reload runs periodically to recover from missed changes.
func main() {
	cfg, err := config.Load("trackzone-fencewatch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "trackzone-fencewatch")

	if cfg.Fence.Inline {
		logging.Fatal("fence.inline is set; the API already detects crossings")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		logging.Fatal("db", "error", err)
	}
	defer db.Close()

	// NATS
	codec, err := natsadapter.CodecFor(cfg.NATS.Encoding)
	if err != nil {
		logging.Fatal("nats codec", "error", err)
	}
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL, codec)
	if err != nil {
		logging.Fatal("nats publisher", "error", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		logging.Fatal("nats subscriber", "error", err)
	}
	defer sub.Close()

	monitor := usecases.NewFenceMonitor(postgres.NewGeozoneRepo(db), pub, cfg.Geozone.Sphere())

	// Subscribe to changes before the first load so no edit falls between them.
	err = sub.SubscribeGeozoneChanges(ctx, func(ctx context.Context, change *domain.GeozoneChange) error {
		monitor.Apply(change)
		slog.Debug("geozone change applied", "kind", change.Kind, "zone_id", change.ZoneID)
		return nil
	})
	if err != nil {
		logging.Fatal("subscribe geozone changes", "error", err)
	}
	if err := monitor.Reload(ctx); err != nil {
		logging.Fatal("load geozones", "error", err)
	}

	err = sub.SubscribePositions(ctx, func(ctx context.Context, pos *domain.DevicePosition) error {
		events := monitor.Observe(ctx, pos)
		for _, ev := range events {
			slog.Info("fence crossing",
				"device_id", ev.DeviceID,
				"zone_id", ev.ZoneID,
				"transition", ev.Transition,
			)
		}
		return nil
	})
	if err != nil {
		logging.Fatal("subscribe positions", "error", err)
	}

	slog.Info("fence monitor started", "zones", monitor.Zones())

	reloadInterval := 5 * time.Minute
	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := monitor.Reload(ctx); err != nil {
				slog.Warn("periodic reload failed", "error", err)
				continue
			}
			slog.Debug("geozones reloaded", "zones", monitor.Zones())
		case sig := <-quit:
			slog.Info("shutting down fence monitor", "signal", sig.String())
			cancel()
			return
		}
	}
}
