package revkit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/revolttest"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// sendMessage delivers a message from the logged-in user to Ch1 and waits
// until it is stored.
func sendMessage(t *testing.T, env *testEnv, conn *revolttest.Conn, id string, extra map[string]any) *Message {
	t.Helper()
	n := len(eventsOf[*MessageEvent](env.events))
	frame := map[string]any{"type": "Message", "_id": id, "channel": "Ch1", "author": "U", "content": "hi"}
	for k, v := range extra {
		frame[k] = v
	}
	require.NoError(t, conn.Send(frame))
	msgs := waitEvents[*MessageEvent](t, env.events, n+1)
	return msgs[n].Message
}

func TestMessageUpdateFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	msg := sendMessage(t, env, conn, idAt(time.Minute), nil)

	edited := epoch.Add(time.Hour)
	require.NoError(t, conn.Send(map[string]any{
		"type": "MessageUpdate", "id": msg.ID(), "channel": "Ch1",
		"data": map[string]any{"content": "edited", "edited": edited.Format(time.RFC3339)},
	}))
	updates := waitEvents[*MessageUpdateEvent](t, env.events, 1)
	assert.Same(t, msg, updates[0].Message)
	assert.Equal(t, "edited", msg.Content())
	require.NotNil(t, msg.Edited())
	assert.True(t, edited.Equal(*msg.Edited()))
}

func TestMessageAppendKeepsRawEmbeds(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	msg := sendMessage(t, env, conn, idAt(time.Minute), map[string]any{
		"embeds": []any{map[string]any{
			"type": "Website", "url": "https://a",
			"special": map[string]any{"type": "YouTube", "id": "dQw4w9WgXcQ"},
		}},
	})

	require.NoError(t, conn.Send(map[string]any{
		"type": "MessageAppend", "id": msg.ID(), "channel": "Ch1",
		"append": map[string]any{"embeds": []any{map[string]any{
			"type": "Website", "url": "https://b",
			"special": map[string]any{"type": "Spotify", "content_type": "track", "id": "t1"},
		}}},
	}))
	waitEvents[*MessageUpdateEvent](t, env.events, 1)

	raw := msg.Raw()
	assert.Equal(t, int64(2), gjson.GetBytes(raw, "embeds.#").Int())
	assert.Equal(t, "https://a", gjson.GetBytes(raw, "embeds.0.url").String())
	assert.Equal(t, "YouTube", gjson.GetBytes(raw, "embeds.0.special.type").String())
	assert.Equal(t, "https://b", gjson.GetBytes(raw, "embeds.1.url").String())
	assert.Equal(t, "track", gjson.GetBytes(raw, "embeds.1.special.content_type").String())
	assert.Len(t, msg.Embeds(), 2)
}

func TestMessageAppendOnMessageWithoutEmbeds(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	msg := sendMessage(t, env, conn, idAt(time.Minute), nil)

	require.NoError(t, conn.Send(map[string]any{
		"type": "MessageAppend", "id": msg.ID(), "channel": "Ch1",
		"append": map[string]any{"embeds": []any{map[string]any{"type": "Text", "description": "d"}}},
	}))
	waitEvents[*MessageUpdateEvent](t, env.events, 1)
	assert.Equal(t, "d", gjson.GetBytes(msg.Raw(), "embeds.0.description").String())
}

func TestReactionFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	msg := sendMessage(t, env, conn, idAt(time.Minute), nil)

	step := 0
	send := func(frame map[string]any) {
		t.Helper()
		frame["id"] = msg.ID()
		frame["channel_id"] = "Ch1"
		frame["emoji_id"] = "E"
		require.NoError(t, conn.Send(frame))
		step++
		waitEvents[*MessageUpdateEvent](t, env.events, step)
	}

	send(map[string]any{"type": "MessageReact", "user_id": "A"})
	send(map[string]any{"type": "MessageReact", "user_id": "B"})
	send(map[string]any{"type": "MessageReact", "user_id": "A"})
	assert.Equal(t, map[string][]string{"E": {"A", "B"}}, msg.Reactions(), "reacting twice is a no-op")

	send(map[string]any{"type": "MessageUnreact", "user_id": "A"})
	assert.Equal(t, map[string][]string{"E": {"B"}}, msg.Reactions())

	send(map[string]any{"type": "MessageRemoveReaction"})
	assert.Empty(t, msg.Reactions())
}

func TestBulkMessageDeleteFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	first := sendMessage(t, env, conn, idAt(time.Minute), nil)
	second := sendMessage(t, env, conn, idAt(2*time.Minute), nil)
	kept := sendMessage(t, env, conn, idAt(3*time.Minute), nil)

	require.NoError(t, conn.Send(map[string]any{
		"type": "BulkMessageDelete", "channel": "Ch1", "ids": []string{first.ID(), second.ID(), "unknown"},
	}))
	deletes := waitEvents[*MessageDeleteEvent](t, env.events, 3)
	assert.Same(t, first, deletes[0].Message)
	assert.Same(t, second, deletes[1].Message)
	assert.Nil(t, deletes[2].Message)

	messages := env.client.Channels.Get("Ch1").Messages()
	assert.Equal(t, 1, messages.Len())
	assert.Same(t, kept, messages.Get(kept.ID()))
	assert.True(t, first.Deleted())
}

func TestUserRelationshipFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())

	require.NoError(t, conn.Send(map[string]any{
		"type": "UserRelationship", "id": "U", "user": userRec("X", "xavier"), "status": "Incoming",
	}))
	require.NoError(t, conn.Send(map[string]any{
		"type": "UserRelationship", "id": "U", "user": userRec("X", "xavier"), "status": "Friend",
	}))

	events := waitEvents[*UserRelationshipUpdateEvent](t, env.events, 2)
	assert.Same(t, events[0].User, events[1].User)
	x := env.client.Users.Get("X")
	require.NotNil(t, x)
	assert.Equal(t, models.RelationshipFriend, x.Relationship())
}

func TestEmojiFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	id := idAt(time.Minute)

	require.NoError(t, conn.Send(map[string]any{
		"type": "EmojiCreate", "_id": id, "name": "party", "creator_id": "U",
		"parent": map[string]string{"type": "Server", "id": "S"},
	}))
	created := waitEvents[*EmojiCreateEvent](t, env.events, 1)
	assert.Equal(t, "party", created[0].Emoji.Name())
	assert.Equal(t, "S", created[0].Emoji.ParentID())
	assert.Same(t, created[0].Emoji, env.client.Emojis.Get(id))
	assert.Len(t, env.client.Emojis.Ordered(), 1)

	require.NoError(t, conn.Send(map[string]any{"type": "EmojiDelete", "id": id}))
	deleted := waitEvents[*EmojiDeleteEvent](t, env.events, 1)
	assert.Equal(t, id, deleted[0].ID)
	assert.Same(t, created[0].Emoji, deleted[0].Emoji)
	assert.True(t, created[0].Emoji.Deleted())
	assert.Empty(t, env.client.Emojis.Ordered())
}

func TestChannelAckFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())
	read := idAt(time.Minute)

	require.NoError(t, conn.Send(map[string]any{"type": "ChannelAck", "id": "Ch1", "user": "U", "message_id": read}))
	require.Eventually(t, func() bool {
		u, ok := env.client.Unreads.Get("Ch1")
		return ok && u.LastID == read
	}, waitFor, 5*time.Millisecond)

	// Acks from other sessions are not echoed back to the server.
	assert.False(t, env.server.Requested(http.MethodPut, "/channels/Ch1/ack/"+read))
}

func TestServerCreateAndDeleteFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, readyFrame())

	require.NoError(t, conn.Send(map[string]any{
		"type":     "ServerCreate",
		"id":       "S2",
		"server":   serverRec("S2", "U", []string{"C2"}, map[string]any{"R": roleRec("r", 0, 0, 0)}),
		"channels": []any{textChannelRec("C2", "S2")},
	}))
	created := waitEvents[*ServerCreateEvent](t, env.events, 1)
	s := created[0].Server
	assert.Equal(t, "S2", s.ID())
	assert.Same(t, s, env.client.Servers.Get("S2"))
	require.NotNil(t, env.client.Channels.Get("C2"))
	assert.Same(t, s, env.client.Channels.Get("C2").Server())
	assert.Equal(t, 1, s.Roles.Len())
	assert.False(t, env.server.Requested(http.MethodGet, "/channels/C2"), "channels sent with the frame are not fetched")

	require.NoError(t, conn.Send(map[string]any{"type": "ServerDelete", "id": "S2"}))
	exits := waitEvents[*ServerExitedEvent](t, env.events, 1)
	assert.Equal(t, "S2", exits[0].ID)
	assert.Same(t, s, exits[0].Server)
	assert.True(t, s.Deleted())
	assert.False(t, env.client.Channels.Has("C2"))
	assert.True(t, env.client.Servers.Has("S"))
}

func TestGroupFrames(t *testing.T) {
	env := newTestEnv(t)
	env.server.Handle(http.MethodGet, "/users/X", http.StatusOK, userRec("X", "xavier"))
	conn := env.connect(t, readyFrame())

	require.NoError(t, conn.Send(map[string]any{
		"type": "ChannelCreate", "_id": "G", "channel_type": "Group", "name": "g", "owner": "U", "recipients": []string{"U"},
	}))
	created := waitEvents[*ChannelCreateEvent](t, env.events, 1)
	group := created[0].Channel
	require.True(t, group.IsGroup())

	require.NoError(t, conn.Send(map[string]any{"type": "ChannelGroupJoin", "id": "G", "user": "X"}))
	joins := waitEvents[*GroupMemberJoinEvent](t, env.events, 1)
	assert.Same(t, group, joins[0].Group)
	assert.Equal(t, "xavier", joins[0].User.Username())
	assert.Equal(t, []string{"U", "X"}, group.RecipientIDs())

	require.NoError(t, conn.Send(map[string]any{"type": "ChannelGroupLeave", "id": "G", "user": "X"}))
	leaves := waitEvents[*GroupMemberLeaveEvent](t, env.events, 1)
	assert.Equal(t, "X", leaves[0].UserID)
	assert.Equal(t, []string{"U"}, group.RecipientIDs())

	require.NoError(t, conn.Send(map[string]any{"type": "ChannelGroupLeave", "id": "G", "user": "U"}))
	exits := waitEvents[*GroupExitedEvent](t, env.events, 1)
	assert.Equal(t, "G", exits[0].ID)
	assert.Same(t, group, exits[0].Group)
	assert.True(t, group.Deleted())
	assert.False(t, env.client.Channels.Has("G"))
}

func TestCloseClearsTypingSets(t *testing.T) {
	env := newTestEnv(t)
	ready := readyFrame()
	ready["channels"] = []any{textChannelRec("Ch1", "S"), textChannelRec("Ch2", "S")}
	conn := env.connect(t, ready)

	for _, id := range []string{"Ch1", "Ch2"} {
		require.NoError(t, conn.Send(map[string]any{"type": "ChannelStartTyping", "id": id, "user": "X"}))
	}
	waitEvents[*ChannelStartTypingEvent](t, env.events, 2)
	require.NotEmpty(t, env.client.Channels.Get("Ch1").TypingIDs())
	require.NotEmpty(t, env.client.Channels.Get("Ch2").TypingIDs())

	env.client.Disconnect()
	waitEvents[*DisconnectedEvent](t, env.events, 1)

	assert.Empty(t, env.client.Channels.Get("Ch1").TypingIDs())
	assert.Empty(t, env.client.Channels.Get("Ch2").TypingIDs())
	assert.False(t, env.client.User().Online())

	// Expired typing timers must not fire into the cleared sets.
	env.clock.Advance(TypingTimeout)
	assert.Empty(t, eventsOf[*ChannelStopTypingEvent](env.events))
}

func TestDestroyWaitsForSocket(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, readyFrame())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, env.client.Destroy(ctx, false))

	all := env.events.all()
	require.NotEmpty(t, all)
	var sawDisconnect bool
	for _, e := range all[:len(all)-1] {
		if _, ok := e.(*DisconnectedEvent); ok {
			sawDisconnect = true
		}
	}
	assert.True(t, sawDisconnect, "Disconnected precedes Destroyed")
	_, last := all[len(all)-1].(*DestroyedEvent)
	assert.True(t, last)
	assert.Equal(t, StateDisconnected, env.client.State())
}
