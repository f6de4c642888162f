package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/trackzone/internal/adapters/kmlmap"
	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
)

// IngestPositionHandler stores a device fix and returns the geofence
// crossings it caused.
func IngestPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var pos domain.DevicePosition
		if err := c.BodyParser(&pos); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pos.DeviceID = c.Params("id")

		events, err := deps.Positions.Ingest(c.UserContext(), &pos)
		if err != nil {
			return errFromService(c, err)
		}
		if events == nil {
			events = []domain.FenceEvent{}
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"position": pos, "events": events})
	}
}

// LatestPositionHandler returns a device's most recent fix.
func LatestPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pos, err := deps.Positions.Latest(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(pos)
	}
}

// TrackKMLHandler renders a device track as KML.
func TrackKMLHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := timeRange(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		deviceID := c.Params("id")

		backend := newKMLBackend(deps, deviceID)
		report, err := deps.Maps.RenderTrack(c.UserContext(), deviceID, from, to, backend)
		if err != nil {
			return errFromService(c, err)
		}
		return sendKML(c, backend, report, deviceID+".kml")
	}
}

// StartReplayHandler starts replaying a device track.
func StartReplayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req usecases.ReplayRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.DeviceID == "" {
			return errBadRequest(c, "device_id is required")
		}
		if req.IntervalMS < 0 || req.IntervalMS > 60000 {
			return errBadRequest(c, "interval_ms must be between 0 and 60000")
		}
		if !req.From.IsZero() && !req.To.IsZero() && req.From.After(req.To) {
			return errBadRequest(c, "from must not be after to")
		}

		st, err := deps.Replays.Start(c.UserContext(), req)
		if err != nil {
			return errFromService(c, err)
		}
		c.Location("/v1/replays/" + st.SessionID)
		return c.Status(fiber.StatusCreated).JSON(st)
	}
}

// GetReplayHandler returns the status of a replay session.
func GetReplayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := deps.Replays.Get(c.Params("id"))
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(st)
	}
}

// ReplayControlHandler pauses, resumes, toggles or stops a session.
func ReplayControlHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var (
			st  domain.ReplayStatus
			err error
		)
		switch c.Params("action") {
		case "pause":
			st, err = deps.Replays.Pause(id)
		case "resume":
			st, err = deps.Replays.Resume(id)
		case "toggle":
			st, err = deps.Replays.Toggle(id)
		case "stop":
			st, err = deps.Replays.Stop(id)
		default:
			return errNotFound(c, "unknown replay action: "+c.Params("action"))
		}
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(st)
	}
}

// timeRange parses the RFC 3339 from/to query parameters. to defaults to
// now and from to 24 hours before to.
func timeRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	to := time.Now()
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be RFC 3339: %v", err)
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be RFC 3339: %v", err)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}

func newKMLBackend(deps *Dependencies, name string) *kmlmap.Backend {
	profile, _ := deps.Map.Profile("")
	return kmlmap.New(kmlmap.Options{
		Name:    name,
		Profile: profile,
		Width:   deps.Map.Width,
		Height:  deps.Map.Height,
	})
}

// sendKML writes the document. Drawing failures are reported in a header;
// the document holds whatever was drawn.
func sendKML(c *fiber.Ctx, backend *kmlmap.Backend, report *domain.BatchReport, filename string) error {
	var buf bytes.Buffer
	if err := backend.Encode(&buf); err != nil {
		return errFromService(c, fmt.Errorf("encode kml: %w", err))
	}
	c.Set("X-Draw-Failures", fmt.Sprint(len(report.Failures)))
	c.Set(fiber.HeaderContentType, kmlmap.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}
