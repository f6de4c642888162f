package natsadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// Subject roots. The websocket relay subscribes to the wildcard forms.
const (
	SubjectGeozones  = "trackzone.geozones"
	SubjectPositions = "trackzone.positions"
	SubjectFences    = "trackzone.fences"
	SubjectReplay    = "trackzone.replay"
)

// Publisher implements ports.EventPublisher using NATS JetStream. Replay
// frames are high-rate and short-lived, so they go over core NATS.
type Publisher struct {
	conn  *nats.Conn
	js    nats.JetStreamContext
	codec Codec
}

// NewPublisher connects to NATS, enables JetStream and ensures the streams exist.
func NewPublisher(url string, codec Codec) (*Publisher, error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "DEVICE_POSITIONS",
			Subjects:  []string{SubjectPositions + ".>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "GEOZONE_CHANGES",
			Subjects:  []string{SubjectGeozones + ".>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "FENCE_EVENTS",
			Subjects:  []string{SubjectFences + ".>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js, codec: codec}, nil
}

func (p *Publisher) PublishGeozoneChange(ctx context.Context, change *domain.GeozoneChange) error {
	return p.persist(ctx, Subject(SubjectGeozones, change.AccountID, change.ZoneID), change)
}

func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.DevicePosition) error {
	return p.persist(ctx, Subject(SubjectPositions, pos.DeviceID), pos)
}

func (p *Publisher) PublishFenceEvent(ctx context.Context, event *domain.FenceEvent) error {
	return p.persist(ctx, Subject(SubjectFences, event.DeviceID, string(event.Transition)), event)
}

func (p *Publisher) PublishReplayFrame(ctx context.Context, frame *domain.ReplayFrame) error {
	return p.broadcast(Subject(SubjectReplay, frame.SessionID, "frame"), frame)
}

func (p *Publisher) PublishReplayStatus(ctx context.Context, status *domain.ReplayStatus) error {
	return p.broadcast(Subject(SubjectReplay, status.SessionID, "status"), status)
}

func (p *Publisher) persist(ctx context.Context, subject string, v any) error {
	msg, err := p.message(subject, v)
	if err != nil {
		return err
	}
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

func (p *Publisher) broadcast(subject string, v any) error {
	msg, err := p.message(subject, v)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(msg)
}

func (p *Publisher) message(subject string, v any) (*nats.Msg, error) {
	data, err := p.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderContentType, p.codec.ContentType())
	msg.Data = data
	return msg, nil
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// Subject joins root and tokens, replacing characters NATS treats as
// separators or wildcards. Empty tokens become "_".
func Subject(root string, tokens ...string) string {
	var b strings.Builder
	b.WriteString(root)
	for _, t := range tokens {
		b.WriteByte('.')
		if t == "" {
			b.WriteByte('_')
			continue
		}
		b.WriteString(subjectReplacer.Replace(t))
	}
	return b.String()
}

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
