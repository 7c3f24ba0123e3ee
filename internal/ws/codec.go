package ws

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts between the wire encoding of a frame and JSON. Handlers
// always see JSON regardless of the negotiated format.
type Codec interface {
	// Format is the value of the "format" query parameter.
	Format() string
	MessageType() int
	Decode(data []byte) ([]byte, error)
	Encode(v any) ([]byte, error)
}

// CodecFor returns the codec for format ("json" or "msgpack"). An empty
// format means json.
func CodecFor(format string) (Codec, error) {
	switch format {
	case "", "json":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("ws: unknown format %q", format)
}

type jsonCodec struct{}

func (jsonCodec) Format() string   { return "json" }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

type msgpackCodec struct{}

func (msgpackCodec) Format() string   { return "msgpack" }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (msgpackCodec) Decode(data []byte) ([]byte, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("ws: decode msgpack frame: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ws: re-encode msgpack frame: %w", err)
	}
	return out, nil
}

func (msgpackCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return msgpack.Marshal(numbers(generic))
}

// numbers replaces json.Number values with int64 or float64 so they are
// packed as numbers rather than strings.
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = numbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = numbers(e)
		}
	}
	return v
}
