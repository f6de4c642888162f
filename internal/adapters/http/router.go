package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/trackzone/internal/pkg/metrics"
)

// RouteOptions tunes SetupRoutes.
type RouteOptions struct {
	// RateLimit is the number of requests per minute per IP; 0 disables it.
	RateLimit int
	// OpenAPIPath is served at /docs/openapi.yaml.
	OpenAPIPath string
}

// DefaultRouteOptions are used by the API server.
var DefaultRouteOptions = RouteOptions{RateLimit: 300, OpenAPIPath: "api/openapi.yaml"}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, opts RouteOptions) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			Next: func(c *fiber.Ctx) bool {
				// Streams hold one connection; pointer traffic is not metered.
				return websocket.IsWebSocketUpgrade(c)
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// 15s per-request timeout, except replay control which must answer fast
	// and geocode which has its own upstream deadline.
	t := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, 15*time.Second) }

	v1 := app.Group("/v1")
	v1.Get("/geozones", t(ListGeozonesHandler(deps)))
	v1.Post("/geozones", t(CreateGeozoneHandler(deps)))
	v1.Post("/geozones/batch", timeout.NewWithContext(BatchGeozonesHandler(deps), 60*time.Second))
	v1.Get("/geozones/containing", t(ContainingHandler(deps)))
	v1.Get("/geozones/:id", t(GetGeozoneHandler(deps)))
	v1.Put("/geozones/:id", t(UpdateGeozoneHandler(deps)))
	v1.Delete("/geozones/:id", t(DeleteGeozoneHandler(deps)))
	v1.Get("/geozones/:id/circles", t(CirclesHandler(deps)))
	v1.Get("/geozones/:id/scene", t(GeozoneSceneHandler(deps)))
	v1.Get("/geozones/:id/kml", t(GeozoneKMLHandler(deps)))

	v1.Get("/geocode", GeocodeHandler(deps))

	v1.Post("/devices/:id/positions", t(IngestPositionHandler(deps)))
	v1.Get("/devices/:id/position", t(LatestPositionHandler(deps)))
	v1.Get("/devices/:id/track.kml", t(TrackKMLHandler(deps)))

	v1.Post("/replays", t(StartReplayHandler(deps)))
	v1.Get("/replays/:id", GetReplayHandler(deps))
	v1.Post("/replays/:id/:action", ReplayControlHandler(deps))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, opts.OpenAPIPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	app.Get("/ws/editor/:id", websocket.New(EditorWebSocketHandler(deps)))
}
