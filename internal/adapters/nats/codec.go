package natsadapter

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// HeaderContentType names the payload encoding of a message.
const HeaderContentType = "Content-Type"

const (
	ContentTypeJSON  = "application/json"
	ContentTypeProto = "application/x-protobuf"
)

// Codec encodes event payloads.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecFor returns the codec for a configured encoding ("json" or "proto").
func CodecFor(encoding string) (Codec, error) {
	switch encoding {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown nats encoding %q", encoding)
	}
}

// JSONCodec is plain encoding/json.
type JSONCodec struct{}

func (JSONCodec) ContentType() string                { return ContentTypeJSON }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// ProtoCodec carries the event's JSON shape as a google.protobuf.Struct, so
// consumers in other languages can decode it with the well-known types.
type ProtoCodec struct{}

func (ProtoCodec) ContentType() string { return ContentTypeProto }

func (ProtoCodec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("event is not an object: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Unmarshal(data []byte, v any) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Decode unmarshals msg with the codec named by its Content-Type header.
// Messages without the header are JSON.
func Decode(msg *nats.Msg, v any) error {
	var codec Codec = JSONCodec{}
	if msg.Header != nil && msg.Header.Get(HeaderContentType) == ContentTypeProto {
		codec = ProtoCodec{}
	}
	return codec.Unmarshal(msg.Data, v)
}

// ToJSON re-encodes a message payload as JSON for clients that only speak JSON.
func ToJSON(msg *nats.Msg) ([]byte, error) {
	if msg.Header == nil || msg.Header.Get(HeaderContentType) != ContentTypeProto {
		return msg.Data, nil
	}
	var fields map[string]any
	if err := Decode(msg, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
