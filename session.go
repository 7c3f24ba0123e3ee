package revkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/clock"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/ws"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// TypingTimeout is how long a user stays in a channel's typing set without
// a refresh.
const TypingTimeout = 3 * time.Second

// session owns the WebSocket. Each dial creates a link; a link that closes
// unexpectedly after authenticating is replaced by the reconnect loop.
type session struct {
	client *Client
	fatal  chan error

	mu       sync.Mutex
	state    State
	link     *link
	lifetime context.Context
	stop     context.CancelFunc

	reconnecting atomic.Bool
	pingNanos    atomic.Int64

	typingMu sync.Mutex
	typing   map[typingKey]*clock.Timer
}

type typingKey struct {
	channel string
	user    string
}

// link is one WebSocket connection.
type link struct {
	conn   *ws.Connection
	ctx    context.Context
	cancel context.CancelFunc

	ready     chan error
	readyOnce sync.Once
	done      chan struct{} // closed once run has finished tearing down

	authenticated atomic.Bool
	intentional   atomic.Bool

	mu        sync.Mutex
	heartbeat *clock.Ticker
	pongTimer *clock.Timer
}

func (l *link) resolve(err error) {
	l.readyOnce.Do(func() { l.ready <- err })
}

func (l *link) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.heartbeat.Stop()
	l.pongTimer.Stop()
	l.pongTimer = nil
}

func newSession(c *Client) *session {
	return &session{
		client: c,
		fatal:  make(chan error, 1),
		typing: make(map[typingKey]*clock.Timer),
	}
}

func (s *session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) latency() time.Duration {
	return time.Duration(s.pingNanos.Load())
}

// connect replaces any open connection and waits for Ready.
func (s *session) connect(ctx context.Context) error {
	s.disconnect()

	s.mu.Lock()
	s.lifetime, s.stop = context.WithCancel(context.Background())
	lifetime := s.lifetime
	s.mu.Unlock()

	return s.dial(ctx, lifetime)
}

// dial opens one link and blocks until it is ready, fails, or ctx ends.
func (s *session) dial(ctx, lifetime context.Context) error {
	cfg := s.client.Configuration()
	if cfg == nil {
		return ErrNotConfigured
	}
	token, _ := s.client.api.Token()
	if token == "" {
		return ErrNoSession
	}
	codec, err := ws.CodecFor(s.client.cfg.Format)
	if err != nil {
		return err
	}

	s.setState(StateConnecting)
	s.client.emit(&ConnectingEvent{})

	conn, err := s.client.cfg.Dialer.Dial(ctx, socketURL(cfg.WS, codec.Format()))
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", cfg.WS, err)
	}

	lctx, cancel := context.WithCancel(lifetime)
	l := &link{
		conn:   ws.NewConnection(conn, codec, s.frameLogger()),
		ctx:    lctx,
		cancel: cancel,
		ready:  make(chan error, 1),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if lifetime.Err() != nil {
		s.mu.Unlock()
		cancel()
		l.conn.Close()
		return ErrClosed
	}
	s.link = l
	s.state = StateAuthenticating
	s.mu.Unlock()

	go s.run(l)

	if err := l.conn.Send(models.AuthenticateCommand{Type: models.FrameAuthenticate, Token: token}); err != nil {
		l.conn.Close()
	}

	select {
	case err := <-l.ready:
		return err
	case <-ctx.Done():
		s.drop(l)
		return ctx.Err()
	}
}

var discardLogger = slog.New(slog.DiscardHandler)

func (s *session) frameLogger() *slog.Logger {
	if s.client.cfg.Debug {
		return s.client.logger
	}
	return discardLogger
}

func socketURL(base, format string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("version", "1")
	q.Set("format", format)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *session) run(l *link) {
	err := l.conn.Handle(l.ctx, func(ctx context.Context, frame []byte) {
		s.client.handleFrame(ctx, l, frame)
	})
	s.closed(l, err)
	close(l.done)
}

// closed tears down after a link ended. Only the current link touches
// shared state; a link replaced by a newer one just stops its timers.
func (s *session) closed(l *link, err error) {
	l.cancel()
	l.stopTimers()
	if err != nil {
		l.resolve(err)
	} else {
		l.resolve(ErrClosed)
	}

	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	s.link = nil
	s.state = StateDisconnected
	lifetime := s.lifetime
	s.mu.Unlock()

	s.client.resetPresence()
	s.client.emit(&DisconnectedEvent{Err: err})

	if l.intentional.Load() || !l.authenticated.Load() || s.client.cfg.DisableReconnect || lifetime.Err() != nil {
		return
	}
	if s.reconnecting.CompareAndSwap(false, true) {
		go s.reconnect(lifetime)
	}
}

func (s *session) reconnect(lifetime context.Context) {
	defer s.reconnecting.Store(false)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.client.cfg.ReconnectInterval
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		s.client.metrics.reconnects.Inc()
		err := s.dial(lifetime, lifetime)
		var perr *ProtocolError
		if errors.As(err, &perr) || errors.Is(err, ErrNoSession) || errors.Is(err, ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, lifetime), func(err error, next time.Duration) {
		s.client.logger.Warn("reconnect failed", "error", err, "retry_in", next)
	})
	if err != nil && lifetime.Err() == nil {
		s.client.logger.Error("giving up reconnecting", "error", err)
	}
}

// drop closes l on purpose; it will not be reconnected.
func (s *session) drop(l *link) {
	l.intentional.Store(true)
	l.cancel()
	l.conn.Close()
}

// disconnect closes the current link and returns it, nil when there was
// none. Callers that must not overlap with frame handling wait on done.
func (s *session) disconnect() *link {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	l := s.link
	s.mu.Unlock()

	if l != nil {
		s.drop(l)
	}
	return l
}

// shutdown disconnects and waits until the link's reader and handlers
// have returned. It must not be called from an event handler.
func (s *session) shutdown(ctx context.Context) error {
	l := s.disconnect()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the link frames may be sent on.
func (s *session) current() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *session) send(v any) error {
	l := s.current()
	if l == nil {
		return ErrClosed
	}
	return l.conn.Send(v)
}

// authenticated marks l as having passed authentication, which makes it
// eligible for reconnecting.
func (s *session) authenticated(l *link) {
	l.authenticated.Store(true)
	s.mu.Lock()
	if s.link == l {
		s.state = StateConnected
	}
	s.mu.Unlock()
}

func (s *session) ready(l *link) {
	s.mu.Lock()
	if s.link == l {
		s.state = StateReady
	}
	s.mu.Unlock()
	s.startHeartbeat(l)
	l.resolve(nil)
}

func (s *session) startHeartbeat(l *link) {
	interval := s.client.cfg.Heartbeat
	if interval <= 0 {
		return
	}
	s.ping(l)

	t := s.client.clock.NewTicker(interval)
	l.mu.Lock()
	l.heartbeat = t
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.C:
				s.ping(l)
			case <-l.ctx.Done():
				return
			}
		}
	}()
}

// ping arms the pong timer before sending, so a fast Pong always finds it.
func (s *session) ping(l *link) {
	if timeout := s.client.cfg.PongTimeout; timeout > 0 {
		l.mu.Lock()
		if l.pongTimer == nil && l.ctx.Err() == nil {
			l.pongTimer = s.client.clock.AfterFunc(timeout, func() { s.pongMissed(l) })
		}
		l.mu.Unlock()
	}

	now := s.client.clock.Now()
	if err := l.conn.Send(models.PingCommand{Type: models.FramePing, Data: now.UnixMilli()}); err != nil {
		s.client.logger.Debug("ping failed", "error", err)
	}
}

func (s *session) pong(l *link, sent int64) {
	l.mu.Lock()
	l.pongTimer.Stop()
	l.pongTimer = nil
	l.mu.Unlock()

	rtt := s.client.clock.Now().Sub(time.UnixMilli(sent))
	s.pingNanos.Store(int64(rtt))
	s.client.metrics.ping.Observe(rtt.Seconds())
}

func (s *session) pongMissed(l *link) {
	if s.client.cfg.ExitOnTimeout {
		select {
		case s.fatal <- ErrPongTimeout:
		default:
		}
		s.disconnect()
		return
	}
	s.client.logger.Warn("no pong received in time, reconnecting")
	l.conn.Close()
}

// armTyping (re)starts the expiry timer of a typing user.
func (s *session) armTyping(ch *Channel, user string) {
	key := typingKey{channel: ch.ID(), user: user}

	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	s.typing[key].Stop()

	var t *clock.Timer
	t = s.client.clock.AfterFunc(TypingTimeout, func() {
		s.typingMu.Lock()
		if s.typing[key] != t {
			s.typingMu.Unlock()
			return
		}
		delete(s.typing, key)
		s.typingMu.Unlock()
		s.client.stopTyping(ch, user)
	})
	s.typing[key] = t
}

func (s *session) cancelTyping(channelID, user string) {
	key := typingKey{channel: channelID, user: user}
	s.typingMu.Lock()
	s.typing[key].Stop()
	delete(s.typing, key)
	s.typingMu.Unlock()
}

func (s *session) clearTyping() {
	s.typingMu.Lock()
	for k, t := range s.typing {
		t.Stop()
		delete(s.typing, k)
	}
	s.typingMu.Unlock()
}
