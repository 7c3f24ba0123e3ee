package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

type mockWS struct {
	readCh  chan []byte
	writeCh chan []byte
	closeCh chan struct{}

	mu     sync.Mutex
	closed bool
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan []byte, 10),
		writeCh: make(chan []byte, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockWS) WriteMessage(_ int, data []byte) error {
	m.writeCh <- data
	return nil
}

func (m *mockWS) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return 0, nil, errors.New("closed")
		}
		return websocket.TextMessage, msg, nil
	case <-m.closeCh:
		return 0, nil, errors.New("connection closed")
	}
}

func TestConnection_SequentialOrder(t *testing.T) {
	ws := newMockWS()
	codec, _ := CodecFor("json")
	conn := NewConnection(ws, codec, nil)

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	handler := func(_ context.Context, frame []byte) {
		var f struct {
			Type string `json:"type"`
		}
		json.Unmarshal(frame, &f)
		if f.Type == "slow" {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		seen = append(seen, f.Type)
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Handle(context.Background(), handler) }()

	ws.readCh <- []byte(`{"type":"slow"}`)
	ws.readCh <- []byte(`{"type":"fast"}`)
	ws.readCh <- []byte(`{"type":"last"}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frames")
	}

	mu.Lock()
	if len(seen) != 3 || seen[0] != "slow" || seen[1] != "fast" || seen[2] != "last" {
		t.Errorf("frames handled out of order: %v", seen)
	}
	mu.Unlock()

	conn.Close()
	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected read error after close")
		}
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after Close")
	}
}

func TestConnection_CancelReturnsNil(t *testing.T) {
	ws := newMockWS()
	codec, _ := CodecFor("json")
	conn := NewConnection(ws, codec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Handle(ctx, func(context.Context, []byte) {}) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after cancel")
	}
	ws.mu.Lock()
	closed := ws.closed
	ws.mu.Unlock()
	if !closed {
		t.Error("socket was not closed")
	}
}

func TestConnection_Send(t *testing.T) {
	ws := newMockWS()
	codec, _ := CodecFor("json")
	conn := NewConnection(ws, codec, nil)

	if err := conn.Send(map[string]any{"type": "Ping", "data": 42}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := <-ws.writeCh
	if string(got) != `{"data":42,"type":"Ping"}` {
		t.Errorf("unexpected frame %s", got)
	}
}

func TestMsgpackCodec(t *testing.T) {
	codec, err := CodecFor("msgpack")
	if err != nil {
		t.Fatal(err)
	}
	if codec.Format() != "msgpack" || codec.MessageType() != websocket.BinaryMessage {
		t.Errorf("unexpected codec %s/%d", codec.Format(), codec.MessageType())
	}

	packed, err := codec.Encode(struct {
		Type string `json:"type"`
		Data int64  `json:"data"`
	}{"Ping", 1700000000000})
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := msgpack.Unmarshal(packed, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["type"] != "Ping" {
		t.Errorf("unexpected type %v", raw["type"])
	}
	if _, isString := raw["data"].(string); isString {
		t.Error("numbers must not be packed as strings")
	}

	decoded, err := codec.Decode(packed)
	if err != nil {
		t.Fatal(err)
	}
	var back struct {
		Type string `json:"type"`
		Data int64  `json:"data"`
	}
	if err := json.Unmarshal(decoded, &back); err != nil {
		t.Fatal(err)
	}
	if back.Type != "Ping" || back.Data != 1700000000000 {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestCodecFor_Unknown(t *testing.T) {
	if _, err := CodecFor("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
