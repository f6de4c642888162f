package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/trackzone/internal/adapters/geocode"
	"github.com/samirrijal/trackzone/internal/adapters/http"
	"github.com/samirrijal/trackzone/internal/adapters/memcache"
	natsadapter "github.com/samirrijal/trackzone/internal/adapters/nats"
	"github.com/samirrijal/trackzone/internal/adapters/postgres"
	"github.com/samirrijal/trackzone/internal/adapters/valkey"
	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/config"
	"github.com/samirrijal/trackzone/internal/pkg/logging"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("trackzone-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "trackzone-api")

	if err := cfg.RegisterProfiles(); err != nil {
		logging.Fatal("zoom profiles", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
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
		logging.Fatal("database", "error", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Cache: valkey when reachable, otherwise a per-process LRU.
	var (
		cache       ports.CacheService
		cachePinger http.Pinger
	)
	vk, err := valkey.New(cfg.Valkey.Addr, "trackzone:")
	if err != nil {
		slog.Warn("valkey unavailable, using in-process cache", "error", err, "size", cfg.Valkey.LocalSize)
		cache = memcache.New(cfg.Valkey.LocalSize, cfg.Geocode.CacheTTL)
	} else {
		defer vk.Close()
		cache = vk
		cachePinger = vk
	}

	// NATS
	codec, err := natsadapter.CodecFor(cfg.NATS.Encoding)
	if err != nil {
		logging.Fatal("nats codec", "error", err)
	}
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL, codec)
	if err != nil {
		slog.Warn("nats unavailable, events will not be published", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Geocoder
	geocoder, err := geocode.NewClient(geocode.Options{
		Endpoint:   cfg.Geocode.Endpoint,
		Timeout:    cfg.Geocode.Timeout,
		RatePerSec: cfg.Geocode.RatePerSec,
	})
	if err != nil {
		logging.Fatal("geocode client", "error", err)
	}

	// Repos
	zoneRepo := postgres.NewGeozoneRepo(db)
	trackRepo := postgres.NewTrackRepo(db)

	// Use cases
	policy := cfg.Geozone.Policy()
	sphere := cfg.Geozone.Sphere()

	geozoneSvc := usecases.NewGeozoneService(zoneRepo, cache, publisher, usecases.GeozoneOptions{
		Policy:     policy,
		Sphere:     sphere,
		CircleStep: cfg.Geozone.CircleStep,
	})
	geocodeSvc := usecases.NewGeocodeService(geocoder, cache, cfg.Geocode.CacheTTL)

	var fences usecases.FenceObserver
	if cfg.Fence.Inline {
		monitor := usecases.NewFenceMonitor(zoneRepo, publisher, sphere)
		if err := monitor.Reload(ctx); err != nil {
			logging.Fatal("load fences", "error", err)
		}
		if natsConn != nil {
			sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
			if err != nil {
				slog.Warn("geozone change feed unavailable, fences will go stale", "error", err)
			} else {
				defer sub.Close()
				err := sub.SubscribeGeozoneChanges(ctx, func(ctx context.Context, change *domain.GeozoneChange) error {
					monitor.Apply(change)
					return nil
				})
				if err != nil {
					slog.Warn("subscribe geozone changes", "error", err)
				}
			}
		}
		fences = monitor
		slog.Info("inline fence monitoring enabled", "zones", monitor.Zones())
	}
	positionSvc := usecases.NewPositionService(trackRepo, publisher, fences)

	replaySvc := usecases.NewReplayService(trackRepo, publisher, usecases.ReplayOptions{
		DefaultInterval: cfg.Replay.Interval(),
	})
	defer replaySvc.Shutdown()

	mapSvc := usecases.NewMapService(geozoneSvc, trackRepo, mapview.Options{
		Sphere:        sphere,
		Policy:        policy,
		CircleStep:    cfg.Geozone.CircleStep,
		DefaultCenter: cfg.Map.DefaultCenter,
		DefaultZoom:   cfg.Map.DefaultZoom,
	})

	deps := &http.Dependencies{
		Geozones:  geozoneSvc,
		Geocoder:  geocodeSvc,
		Positions: positionSvc,
		Replays:   replaySvc,
		Maps:      mapSvc,
		Map: http.MapSettings{
			Provider: cfg.Map.Provider,
			Width:    cfg.Map.Width,
			Height:   cfg.Map.Height,
		},
		Edit: usecases.EditOptions{
			Policy:     policy,
			Sphere:     sphere,
			CircleStep: cfg.Geozone.CircleStep,
		},
		NATS:  natsConn,
		DB:    db,
		Cache: cachePinger,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // geozone batches of up to 500 items
		AppName:      "Trackzone API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "Link, ETag, Location, X-Draw-Failures",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.DefaultRouteOptions)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logging.Fatal("listen", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
