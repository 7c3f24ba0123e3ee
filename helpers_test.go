package revkit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/clock"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/revolttest"
)

const waitFor = 2 * time.Second

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	client *Client
	server *revolttest.Server
	clock  *clock.Fake
	events *eventLog
}

// newTestEnv returns a logged-in client talking to a fake instance. It does
// not connect.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	srv := revolttest.New(t)
	clk := clock.NewFake(epoch)

	cfg := Config{
		APIURL:            srv.URL(),
		Clock:             clk,
		RequestsPerSecond: -1,
		ReconnectInterval: 10 * time.Millisecond,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)

	events := &eventLog{}
	c.AddHandler(events.add)

	require.NoError(t, c.Login(context.Background(), revolttest.Token, TokenBot, false))
	t.Cleanup(c.Disconnect)
	return &testEnv{client: c, server: srv, clock: clk, events: events}
}

// connect performs the handshake with ready as the snapshot.
func (e *testEnv) connect(t *testing.T, ready any) *revolttest.Conn {
	t.Helper()
	e.server.SetReady(ready)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, e.client.Connect(ctx))
	return e.server.Accept(waitFor)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	if _, ok := e.(*PacketEvent); ok {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// eventsOf returns the recorded events of type T in order.
func eventsOf[T Event](l *eventLog) []T {
	var out []T
	for _, e := range l.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// waitEvents blocks until at least n events of type T were recorded.
func waitEvents[T Event](t *testing.T, l *eventLog, n int) []T {
	t.Helper()
	require.Eventually(t, func() bool { return len(eventsOf[T](l)) >= n }, waitFor, 5*time.Millisecond)
	return eventsOf[T](l)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// idAt returns a ULID for the given offset from epoch, so IDs sort by time.
func idAt(offset time.Duration) string {
	return ulid.MustNew(ulid.Timestamp(epoch.Add(offset)), ulid.DefaultEntropy()).String()
}

func userRec(id, name string) map[string]any {
	return map[string]any{"_id": id, "username": name, "discriminator": "0001"}
}

func selfRec(id, name string) map[string]any {
	u := userRec(id, name)
	u["relationship"] = "User"
	return u
}

func serverRec(id, owner string, channels []string, roles map[string]any) map[string]any {
	rec := map[string]any{
		"_id":                 id,
		"owner":               owner,
		"name":                "server " + id,
		"channels":            channels,
		"default_permissions": 0,
	}
	if roles != nil {
		rec["roles"] = roles
	}
	return rec
}

func textChannelRec(id, server string) map[string]any {
	return map[string]any{"_id": id, "channel_type": "TextChannel", "server": server, "name": "chan " + id}
}

func memberRec(server, user string, roles ...string) map[string]any {
	rec := map[string]any{
		"_id":       map[string]string{"server": server, "user": user},
		"joined_at": epoch.Format(time.RFC3339),
	}
	if len(roles) > 0 {
		rec["roles"] = roles
	}
	return rec
}

func roleRec(name string, rank int64, allow, deny uint64) map[string]any {
	return map[string]any{
		"name":        name,
		"rank":        rank,
		"permissions": map[string]uint64{"a": allow, "d": deny},
	}
}
