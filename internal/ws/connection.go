// Package ws carries Revolt frames over a WebSocket.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn used here, so tests can mock the
// socket.
type Conn interface {
	Close() error
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// QueueSize is how many decoded frames may wait for the handler.
const QueueSize = 256

// Connection reads frames into a FIFO queue and hands them to a single
// handler goroutine one at a time, so frame N+1 is never seen before the
// handler for frame N returned.
type Connection struct {
	ws     Conn
	codec  Codec
	logger *slog.Logger

	writeMu   sync.Mutex
	frames    chan []byte
	errorCh   chan error
	closeOnce sync.Once
}

func NewConnection(ws Conn, codec Codec, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		ws:      ws,
		codec:   codec,
		logger:  logger,
		frames:  make(chan []byte, QueueSize),
		errorCh: make(chan error, 2),
	}
}

// Send encodes v and writes it as one frame.
func (c *Connection) Send(v any) error {
	data, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	c.logger.Debug("outgoing frame", "size", len(data))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(c.codec.MessageType(), data)
}

// Close closes the socket. It is safe to call more than once and from any
// goroutine; Handle returns shortly after.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Handle runs until the socket fails, ctx is cancelled or Close is called.
// handler receives every frame as JSON, in arrival order. The returned
// error is the read error that ended the connection, nil on cancellation.
// The handler gets the caller's ctx, so a frame in progress is not cut short
// by the socket closing.
func (c *Connection) Handle(ctx context.Context, handler func(ctx context.Context, frame []byte)) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpFrames(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx, parent, handler)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.Close()
	wg.Wait()

	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Connection) pumpFrames(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Error("dropping undecodable frame", "error", err)
			continue
		}
		c.logger.Debug("incoming frame", "size", len(frame))

		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx, handlerCtx context.Context, handler func(context.Context, []byte)) error {
	for {
		select {
		case frame := <-c.frames:
			handler(handlerCtx, frame)
		case <-ctx.Done():
			return nil
		}
	}
}
