package natsadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePositions delivers each position to one fence-monitor worker.
func (s *Subscriber) SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.DevicePosition) error) error {
	sub, err := s.js.Subscribe(SubjectPositions+".>", func(msg *nats.Msg) {
		var pos domain.DevicePosition
		if err := Decode(msg, &pos); err != nil {
			slog.Warn("drop undecodable position", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &pos); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("fence-monitor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeGeozoneChanges delivers every change made from now on to this
// subscriber. Each fence-monitor instance keeps its own zone set, so the
// consumer is ephemeral rather than shared.
func (s *Subscriber) SubscribeGeozoneChanges(ctx context.Context, handler func(ctx context.Context, change *domain.GeozoneChange) error) error {
	sub, err := s.js.Subscribe(SubjectGeozones+".>", func(msg *nats.Msg) {
		var change domain.GeozoneChange
		if err := Decode(msg, &change); err != nil {
			slog.Warn("drop undecodable geozone change", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &change); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Conn returns the underlying connection.
func (s *Subscriber) Conn() *nats.Conn {
	return s.conn
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
