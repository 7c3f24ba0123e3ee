package revkit

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/clock"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/ws"
)

const (
	DefaultAPIURL            = "https://api.revolt.chat"
	DefaultHeartbeat         = 30 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultReconnectInterval = 500 * time.Millisecond
)

type Config struct {
	// APIURL is the REST base URL. Defaults to DefaultAPIURL.
	APIURL string
	// Heartbeat is the Ping interval. Zero means DefaultHeartbeat; a
	// negative value disables heartbeats.
	Heartbeat time.Duration
	// PongTimeout is how long to wait for a Pong after a heartbeat Ping.
	// Zero disables the check.
	PongTimeout time.Duration
	// ExitOnTimeout makes a missed Pong fatal (reported on Client.Fatal)
	// instead of triggering a reconnect.
	ExitOnTimeout    bool
	DisableReconnect bool
	// ReconnectInterval is the first backoff step between reconnect
	// attempts.
	ReconnectInterval time.Duration
	// Format is the WebSocket encoding, "json" (default) or "msgpack".
	Format string
	Debug  bool

	RequestsPerSecond float64
	HTTPClient        *http.Client
	Dialer            ws.Dialer
	Logger            *slog.Logger
	Clock             clock.Clock
	// Registerer receives the session metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("revkit: invalid APIURL %q: %w", c.APIURL, err)
	}

	if c.Heartbeat == 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.PongTimeout < 0 {
		return fmt.Errorf("revkit: PongTimeout must not be negative")
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}

	if _, err := ws.CodecFor(c.Format); err != nil {
		return fmt.Errorf("revkit: %w", err)
	}
	if c.Format == "" {
		c.Format = "json"
	}

	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Dialer == nil {
		c.Dialer = ws.GorillaDialer{HandshakeTimeout: 10 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return nil
}
