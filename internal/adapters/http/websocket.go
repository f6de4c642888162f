package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/trackzone/internal/adapters/nats"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "fences" | "geozones" | "replay" | "positions"
	// Key narrows the channel: a device for fences and positions, an
	// account for geozones, a session for replay. Empty means all.
	Key string `json:"key"`
}

// wsEvent wraps a relayed broker message.
type wsEvent struct {
	Channel string          `json:"channel"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

var channelRoots = map[string]string{
	"fences":    natsadapter.SubjectFences,
	"geozones":  natsadapter.SubjectGeozones,
	"replay":    natsadapter.SubjectReplay,
	"positions": natsadapter.SubjectPositions,
}

// channelSubject returns the NATS subject a channel subscription listens on.
func channelSubject(channel, key string) (string, bool) {
	root, ok := channelRoots[channel]
	if !ok {
		return "", false
	}
	if key == "" {
		return root + ".>", true
	}
	subject := natsadapter.Subject(root, key)
	if channel == "positions" {
		return subject, true
	}
	return subject + ".>", true
}

// WebSocketHandler returns a handler that relays broker events to the
// client. Clients send {"action":"subscribe","channel":"replay","key":"<session>"}.
// Every connection starts subscribed to all fence events. Protobuf-encoded
// messages are re-encoded as JSON.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("remote", c.RemoteAddr().String())
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subs := make(map[string]*nats.Subscription)
		subscribe := func(channel, subject string) error {
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				data, err := natsadapter.ToJSON(msg)
				if err != nil {
					log.Warn("ws relay decode failed", "subject", msg.Subject, "error", err)
					return
				}
				_ = writeJSON(wsEvent{Channel: channel, Subject: msg.Subject, Data: data})
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}
		defer func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			log.Info("ws client disconnected")
		}()

		if nc == nil {
			_ = writeJSON(map[string]string{"error": "event stream unavailable"})
			return
		}
		if err := subscribe("fences", natsadapter.SubjectFences+".>"); err != nil {
			log.Error("ws default subscribe failed", "error", err)
			return
		}

		done := make(chan struct{})
		defer close(done)
		go keepAlive(c, &mu, done)

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			subject, ok := channelSubject(m.Channel, m.Key)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				if err := subscribe(m.Channel, subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				s, exists := subs[subject]
				if !exists {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					continue
				}
				_ = s.Unsubscribe()
				delete(subs, subject)
				_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}
	}
}

// keepAlive pings every 30 seconds until done is closed or a write fails.
func keepAlive(c *websocket.Conn, mu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mu.Lock()
			err := c.WriteMessage(websocket.PingMessage, nil)
			mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
