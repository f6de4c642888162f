package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/editor"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
)

// editorCommand is one client message on /ws/editor/:id.
type editorCommand struct {
	Type    string                 `json:"type"` // pointer | select | form | geocode | save | snapshot
	Pointer *usecases.PointerInput `json:"pointer,omitempty"`
	Index   int                    `json:"index"`
	Lat     string                 `json:"lat"`
	Lon     string                 `json:"lon"`
	Radius  string                 `json:"radius"`
	Addr    string                 `json:"addr"`
	Country string                 `json:"country"`
}

// editorReply is one server message on /ws/editor/:id.
type editorReply struct {
	Type     string                 `json:"type"` // feedback | snapshot | spec | geocode | saved | error
	Feedback *editor.Feedback       `json:"feedback,omitempty"`
	Snapshot *usecases.EditSnapshot `json:"snapshot,omitempty"`
	Spec     *domain.GeozoneSpec    `json:"spec,omitempty"`
	Point    *domain.GeoPoint       `json:"point,omitempty"`
	Found    bool                   `json:"found,omitempty"`
	Stale    bool                   `json:"stale,omitempty"`
	Zone     *domain.Geozone        `json:"zone,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// editorConn runs the commands of one connection against its edit session.
// Address lookups run in the background so a newer lookup can supersede an
// older one; the rest are answered in order.
type editorConn struct {
	session *usecases.EditSession
	send    func(editorReply)
	wg      sync.WaitGroup
}

func (e *editorConn) handle(ctx context.Context, raw []byte) {
	var cmd editorCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		e.send(editorReply{Type: "error", Error: "invalid JSON"})
		return
	}

	switch cmd.Type {
	case "pointer":
		if cmd.Pointer == nil {
			e.send(editorReply{Type: "error", Error: "pointer is required"})
			return
		}
		fb, err := e.session.Pointer(*cmd.Pointer)
		if err != nil {
			e.send(editorReply{Type: "error", Error: err.Error()})
			return
		}
		e.send(editorReply{Type: "feedback", Feedback: &fb})

	case "select":
		if err := e.session.SelectPoint(cmd.Index); err != nil {
			e.send(editorReply{Type: "error", Error: err.Error()})
			return
		}
		e.sendSnapshot()

	case "form":
		spec := e.session.ApplyForm(cmd.Lat, cmd.Lon, cmd.Radius)
		e.send(editorReply{Type: "spec", Spec: &spec})

	case "geocode":
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.geocode(ctx, cmd.Addr, cmd.Country)
		}()

	case "save":
		zone, err := e.session.Save(ctx)
		if err != nil {
			e.send(editorReply{Type: "error", Error: err.Error()})
			return
		}
		e.send(editorReply{Type: "saved", Zone: zone})

	case "snapshot":
		e.sendSnapshot()

	default:
		e.send(editorReply{Type: "error", Error: "unknown command: " + cmd.Type})
	}
}

func (e *editorConn) geocode(ctx context.Context, addr, country string) {
	p, ok, err := e.session.CenterOnAddress(ctx, addr, country)
	switch {
	case errors.Is(err, usecases.ErrStaleGeocode):
		e.send(editorReply{Type: "geocode", Stale: true})
	case err != nil:
		e.send(editorReply{Type: "error", Error: "geocode failed: " + err.Error()})
	case !ok:
		e.send(editorReply{Type: "geocode"})
	default:
		e.send(editorReply{Type: "geocode", Found: true, Point: &p})
		e.sendSnapshot()
	}
}

func (e *editorConn) sendSnapshot() {
	snap := e.session.Snapshot()
	e.send(editorReply{Type: "snapshot", Snapshot: &snap})
}

// EditorWebSocketHandler serves an interactive edit session. The path ID
// names the zone to edit; "new" starts an empty zone for the account_id
// query parameter.
func EditorWebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		send := func(r editorReply) {
			data, err := json.Marshal(r)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_ = c.WriteMessage(websocket.TextMessage, data)
		}

		id := c.Params("id")
		log := slog.Default().With("zone_id", id, "remote", c.RemoteAddr().String())

		var zone *domain.Geozone
		if id == "new" {
			zone = &domain.Geozone{AccountID: c.Query("account_id")}
		} else {
			z, err := deps.Geozones.Get(ctx, id)
			if err != nil {
				send(editorReply{Type: "error", Error: "load geozone: " + err.Error()})
				return
			}
			zone = z
		}

		session := usecases.NewEditSession(zone, deps.Geozones, deps.Geocoder, deps.Edit)
		defer session.Close()

		conn := &editorConn{session: session, send: send}
		log.Info("editor session opened")
		conn.sendSnapshot()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			conn.handle(ctx, raw)
		}

		cancel()
		conn.wg.Wait()
		log.Info("editor session closed")
	}
}
