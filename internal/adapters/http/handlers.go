package http

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
)

// ListGeozonesHandler returns one page of an account's geozones.
func ListGeozonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID := c.Query("account_id")
		if accountID == "" {
			return errBadRequest(c, "account_id query parameter is required")
		}
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 50
		}

		zones, total, err := deps.Geozones.List(c.UserContext(), accountID, offset, limit)
		if err != nil {
			return errFromService(c, err)
		}
		if zones == nil {
			zones = []domain.Geozone{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: zones, Pagination: pg})
	}
}

// CreateGeozoneHandler stores a new geozone.
func CreateGeozoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.GeozoneInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		zone, err := deps.Geozones.Create(c.UserContext(), in)
		if err != nil {
			return errFromService(c, err)
		}
		c.Location("/v1/geozones/" + zone.ID)
		return c.Status(fiber.StatusCreated).JSON(zone)
	}
}

// BatchGeozonesHandler upserts a list of geozones, continuing past failures.
// A batch with failures answers 207 with the report.
func BatchGeozonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var inputs []usecases.GeozoneInput
		if err := c.BodyParser(&inputs); err != nil {
			return errBadRequest(c, "body must be a JSON array of geozones")
		}
		if len(inputs) == 0 {
			return errBadRequest(c, "batch is empty")
		}
		if len(inputs) > 500 {
			return errBadRequest(c, "batch too large (max 500)")
		}

		report := deps.Geozones.ApplyBatch(c.UserContext(), inputs)
		status := fiber.StatusOK
		if !report.OK() {
			status = fiber.StatusMultiStatus
		}
		return c.Status(status).JSON(report)
	}
}

// GetGeozoneHandler returns a single geozone by ID.
func GetGeozoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		zone, err := deps.Geozones.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(zone)
	}
}

// UpdateGeozoneHandler replaces a geozone.
func UpdateGeozoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.GeozoneInput
		if err := c.BodyParser(&in); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		zone, err := deps.Geozones.Update(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(zone)
	}
}

// DeleteGeozoneHandler removes a geozone.
func DeleteGeozoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Geozones.Delete(c.UserContext(), c.Params("id")); err != nil {
			return errFromService(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// CircleRing is the circle polygon drawn around one zone point.
type CircleRing struct {
	Index int               `json:"index"`
	Ring  []domain.GeoPoint `json:"ring"`
}

// CirclesHandler returns the circle polygon of every set point of a zone.
func CirclesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		step := c.QueryFloat("step", 0)
		if step < 0 || step > 360 {
			return errBadRequest(c, "step must be in (0, 360]")
		}
		circles, err := deps.Geozones.Circles(c.UserContext(), c.Params("id"), step)
		if err != nil {
			return errFromService(c, err)
		}

		out := make([]CircleRing, 0, len(circles))
		for i, ring := range circles {
			out = append(out, CircleRing{Index: i, Ring: ring})
		}
		sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
		return c.JSON(fiber.Map{"zone_id": c.Params("id"), "circles": out})
	}
}

// ContainingHandler returns the zones that contain a point.
func ContainingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		p := domain.GeoPoint{
			Lat: domain.ParseFloatOrZero(c.Query("lat")),
			Lon: domain.ParseFloatOrZero(c.Query("lon")),
		}
		if !p.IsValid() {
			return errBadRequest(c, "lat must be in [-90, 90] and lon in [-180, 180]")
		}

		zones, err := deps.Geozones.Containing(c.UserContext(), p, c.QueryInt("limit", 50))
		if err != nil {
			return errFromService(c, err)
		}
		if zones == nil {
			zones = []domain.Geozone{}
		}
		return c.JSON(zones)
	}
}

// GeocodeResult is the answer of the geocode endpoint.
type GeocodeResult struct {
	Found bool             `json:"found"`
	Point *domain.GeoPoint `json:"point,omitempty"`
}

// GeocodeHandler resolves an address. A lookup without a usable result
// answers found=false, not an error.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		addr := strings.TrimSpace(c.Query("addr"))
		if addr == "" {
			return errBadRequest(c, "addr query parameter is required")
		}
		if len(addr) > 256 {
			return errBadRequest(c, "addr too long (max 256 characters)")
		}

		p, ok, err := deps.Geocoder.Lookup(c.UserContext(), addr, c.Query("country"))
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("geocode failed", "addr", addr, "error", err)
			return errUnavailable(c, "geocoder unavailable")
		}
		if !ok {
			return c.JSON(GeocodeResult{})
		}
		return c.JSON(GeocodeResult{Found: true, Point: &p})
	}
}
