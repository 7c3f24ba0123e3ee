// Package revolttest runs a fake Revolt instance in process: a REST API
// answering canned responses and a WebSocket endpoint the test drives frame
// by frame.
package revolttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// Token is the session token the fake accepts by default.
const Token = "test-token"

type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type Server struct {
	t        testing.TB
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *Conn

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []Request
	ready    any
	autoPong bool
	token    string
}

// New starts a server that is closed when the test ends. GET / returns an
// instance configuration pointing the client at the server's WebSocket.
func New(t testing.TB) *Server {
	s := &Server{
		t: t,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:    make(chan *Conn, 16),
		routes:   make(map[string]http.HandlerFunc),
		autoPong: true,
		token:    Token,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.srv.Close)

	s.Handle(http.MethodGet, "/", http.StatusOK, map[string]any{
		"revolt": "0.7.0",
		"ws":     s.WSURL(),
		"app":    s.URL(),
		"vapid":  "",
		"features": map[string]any{
			"autumn":  map[string]any{"enabled": true, "url": s.URL() + "/autumn"},
			"january": map[string]any{"enabled": true, "url": s.URL() + "/january"},
			"voso":    map[string]any{"enabled": false, "url": "", "ws": ""},
		},
	})
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

// Handle answers method and path (query excluded) with body encoded as JSON.
func (s *Server) Handle(method, path string, status int, body any) {
	s.HandleFunc(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	})
}

func (s *Server) HandleFunc(method, path string, fn http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = fn
}

// Requests returns the REST requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Requested reports whether a request with method and path was received.
func (s *Server) Requested(method, path string) bool {
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// SetReady makes every new socket answer Authenticate with Authenticated
// followed by frame. With a nil frame the test performs the handshake.
func (s *Server) SetReady(frame any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = frame
}

// SetAutoPong controls whether Pings are answered. It defaults to true.
func (s *Server) SetAutoPong(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPong = on
}

// Accept waits for the next client socket.
func (s *Server) Accept(timeout time.Duration) *Conn {
	s.t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(timeout):
		s.t.Fatalf("revolttest: no connection within %s", timeout)
		return nil
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		s.serveWS(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	fn := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if fn == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type":"NotFound"}`))
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	fn(w, r)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("revolttest: upgrade: %v", err)
		return
	}
	c := &Conn{
		ws:     ws,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
		query:  r.URL.Query().Encode(),
	}

	s.mu.Lock()
	ready, token := s.ready, s.token
	s.mu.Unlock()

	go c.read(s)
	if ready != nil {
		go c.handshake(token, ready)
	}
	s.conns <- c
}

// Conn is the server side of one client socket.
type Conn struct {
	ws    *websocket.Conn
	query string

	writeMu sync.Mutex
	frames  chan []byte
	done    chan struct{}
	once    sync.Once
}

// Query is the raw query the client connected with.
func (c *Conn) Query() string { return c.query }

func (c *Conn) read(s *Server) {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if gjson.GetBytes(data, "type").String() == "Ping" {
			s.mu.Lock()
			pong := s.autoPong
			s.mu.Unlock()
			if pong {
				_ = c.Send(map[string]any{"type": "Pong", "data": gjson.GetBytes(data, "data").Int()})
				continue
			}
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) handshake(token string, ready any) {
	data, ok := <-c.frames
	if !ok {
		return
	}
	if gjson.GetBytes(data, "type").String() != "Authenticate" || gjson.GetBytes(data, "token").String() != token {
		_ = c.Send(map[string]any{"type": "Error", "error": "InvalidSession"})
		return
	}
	_ = c.Send(map[string]any{"type": "Authenticated"})
	_ = c.Send(ready)
}

// Send writes one frame.
func (c *Conn) Send(frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

// Next returns the next frame from the client that was not answered
// automatically.
func (c *Conn) Next(t testing.TB, timeout time.Duration) gjson.Result {
	t.Helper()
	select {
	case data, ok := <-c.frames:
		require.True(t, ok, "revolttest: connection closed")
		return gjson.ParseBytes(data)
	case <-time.After(timeout):
		t.Fatalf("revolttest: no frame within %s", timeout)
		return gjson.Result{}
	}
}

// Closed reports whether the client went away within timeout.
func (c *Conn) Closed(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// Close drops the socket without a close handshake, like a network failure.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
