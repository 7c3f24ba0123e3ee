package revkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

func TestManagerConstructIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	users := env.client.Users

	var notified []string
	users.OnUpdate(func(u *User) { notified = append(notified, u.Username()) })

	first, err := users.Construct(mustJSON(t, map[string]any{"_id": "U1", "username": "alice", "discriminator": "0001", "extra": 1}))
	require.NoError(t, err)
	second, err := users.Construct(mustJSON(t, map[string]any{"_id": "U1", "username": "alicia"}))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, users.Len())
	assert.Equal(t, "alicia", first.Username())
	assert.Equal(t, "0001", first.Discriminator(), "fields missing from the second record are kept")
	assert.JSONEq(t, `{"_id":"U1","username":"alicia","discriminator":"0001","extra":1}`, string(first.Raw()))
	assert.Equal(t, []string{"alice", "alicia"}, notified)
}

func TestManagerRejectsRecordWithoutID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.Users.Construct(mustJSON(t, map[string]any{"username": "nobody"}))
	require.Error(t, err)
	assert.Zero(t, env.client.Users.Len())
}

func TestManagerDelete(t *testing.T) {
	env := newTestEnv(t)
	users := env.client.Users

	u, err := users.Construct(mustJSON(t, userRec("U1", "alice")))
	require.NoError(t, err)

	var seen []*User
	users.OnUpdate(func(u *User) { seen = append(seen, u) })

	assert.True(t, users.Delete("U1"))
	assert.False(t, users.Delete("U1"))
	assert.True(t, u.Deleted())
	assert.Nil(t, users.Get("U1"))
	require.Len(t, seen, 1)
	assert.Same(t, u, seen[0])

	// Changes to a removed entity no longer reach the manager.
	require.NoError(t, u.update(models.Patch{"username": rawJSON("ghost")}, nil))
	assert.Len(t, seen, 1)
}

func TestManagerEntityUpdatesNotifyBothLevels(t *testing.T) {
	env := newTestEnv(t)
	users := env.client.Users

	u, err := users.Construct(mustJSON(t, userRec("U1", "alice")))
	require.NoError(t, err)

	var entity, collection int
	u.OnUpdate(func() { entity++ })
	users.OnUpdate(func(*User) { collection++ })

	require.NoError(t, u.update(models.Patch{"online": rawJSON(true)}, nil))
	assert.Equal(t, 1, entity)
	assert.Equal(t, 1, collection)
	assert.True(t, u.Online())
}

func TestManagerQueries(t *testing.T) {
	env := newTestEnv(t)
	users := env.client.Users
	for _, rec := range []map[string]any{userRec("C", "carol"), userRec("A", "alice"), userRec("B", "bob")} {
		_, err := users.Construct(mustJSON(t, rec))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"A", "B", "C"}, Map(users.Manager, func(u *User) string { return u.ID() }))
	assert.Equal(t, "bob", users.Find(func(u *User) bool { return u.Username() == "bob" }).Username())
	assert.Nil(t, users.Find(func(u *User) bool { return false }))
	assert.Len(t, users.Filter(func(u *User) bool { return u.Username() != "alice" }), 2)

	byName := users.Sort(func(a, b *User) int {
		switch {
		case a.Username() > b.Username():
			return -1
		case a.Username() < b.Username():
			return 1
		}
		return 0
	})
	assert.Equal(t, "carol", byName[0].Username())
	assert.True(t, users.Has("A"))
	assert.False(t, users.Has("Z"))
}

func TestObjectUpdateClearsNestedFields(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.client.Users.Construct(mustJSON(t, map[string]any{
		"_id":      "U1",
		"username": "alice",
		"status":   map[string]any{"text": "busy", "presence": "Busy"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "busy", u.StatusText())

	require.NoError(t, u.update(nil, []string{"StatusText"}))
	assert.Empty(t, u.StatusText())
	assert.Equal(t, models.PresenceBusy, u.Source().Status.Presence)
}

func TestManagerClearWhileReading(t *testing.T) {
	env := newTestEnv(t)
	users := env.client.Users
	u, err := users.Construct(mustJSON(t, userRec("U1", "alice")))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			_ = users.Items()
			_ = users.Has("U1")
			_ = users.Len()
		}
	}()
	users.clear()
	<-done

	assert.Zero(t, users.Len())
	assert.True(t, u.Deleted())

	// The emptied collection is still usable.
	_, err = users.Construct(mustJSON(t, userRec("U2", "bob")))
	require.NoError(t, err)
	assert.True(t, users.Has("U2"))
}

func TestObjectReplaceSkipsIdenticalRecord(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.client.Users.Construct(mustJSON(t, map[string]any{"_id": "U1", "username": "alice", "online": true}))
	require.NoError(t, err)

	updates := 0
	u.OnUpdate(func() { updates++ })

	require.NoError(t, u.replace(u.Raw()))
	assert.Zero(t, updates)

	require.NoError(t, u.replace(mustJSON(t, map[string]any{"_id": "U1", "username": "alice"})))
	assert.Equal(t, 1, updates)
	assert.False(t, u.Online(), "fields missing from the new record are dropped")
}
