package natsadapter

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

func TestCodecs_RoundTripFenceEvent(t *testing.T) {
	in := domain.FenceEvent{
		DeviceID:   "truck-1",
		ZoneID:     "depot",
		Transition: domain.FenceArrive,
		Location:   domain.GeoPoint{Lat: 43.263, Lon: -2.935},
		Time:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, enc := range []string{"json", "proto"} {
		t.Run(enc, func(t *testing.T) {
			codec, err := CodecFor(enc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			data, err := codec.Marshal(&in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			msg := nats.NewMsg("trackzone.fences.truck-1.arrive")
			msg.Header.Set(HeaderContentType, codec.ContentType())
			msg.Data = data

			var out domain.FenceEvent
			if err := Decode(msg, &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.DeviceID != in.DeviceID || out.Location != in.Location || !out.Time.Equal(in.Time) {
				t.Errorf("round trip mismatch: %+v", out)
			}
		})
	}
}

func TestCodecFor_Unknown(t *testing.T) {
	if _, err := CodecFor("xml"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestToJSON_Proto(t *testing.T) {
	data, err := ProtoCodec{}.Marshal(&domain.ReplayStatus{SessionID: "s1", State: "running"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := nats.NewMsg("trackzone.replay.s1.status")
	msg.Header.Set(HeaderContentType, ContentTypeProto)
	msg.Data = data

	out, err := ToJSON(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out[:1]) != "{" {
		t.Errorf("expected a JSON object, got %q", out)
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		tokens []string
		want   string
	}{
		{[]string{"truck-1"}, "trackzone.positions.truck-1"},
		{[]string{"fleet.a", "*"}, "trackzone.positions.fleet_a._"},
		{[]string{""}, "trackzone.positions._"},
	}
	for _, tt := range tests {
		if got := Subject(SubjectPositions, tt.tokens...); got != tt.want {
			t.Errorf("Subject(%v) = %q, want %q", tt.tokens, got, tt.want)
		}
	}
}
