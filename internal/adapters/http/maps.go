package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/trackzone/internal/adapters/scene"
	"github.com/samirrijal/trackzone/internal/core/domain"
)

// SceneResponse carries the overlay commands of a rendered zone together
// with the drawing report.
type SceneResponse struct {
	Scene  scene.Scene         `json:"scene"`
	Report *domain.BatchReport `json:"report"`
}

// GeozoneSceneHandler renders a geozone as overlay commands for the
// provider named by the provider query parameter.
func GeozoneSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		profile, ok := deps.Map.Profile(c.Query("provider"))
		if !ok {
			return errBadRequest(c, "unknown map provider: "+c.Query("provider"))
		}

		rec := scene.NewRecorder(profile, deps.Map.Width, deps.Map.Height)
		report, err := deps.Maps.RenderGeozone(c.UserContext(), c.Params("id"), rec)
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(SceneResponse{Scene: rec.Scene(), Report: report})
	}
}

// GeozoneKMLHandler renders a geozone as a KML document.
func GeozoneKMLHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		backend := newKMLBackend(deps, id)
		report, err := deps.Maps.RenderGeozone(c.UserContext(), id, backend)
		if err != nil {
			return errFromService(c, err)
		}
		return sendKML(c, backend, report, id+".kml")
	}
}
