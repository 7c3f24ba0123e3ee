package revkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// handleFrame applies one inbound frame. It runs on the link's processing
// goroutine, so frames are applied in order and never concurrently.
func (c *Client) handleFrame(ctx context.Context, l *link, frame []byte) {
	if !gjson.ValidBytes(frame) {
		c.metrics.frameErrors.Inc()
		c.logger.Error("dropping malformed frame", "size", len(frame))
		return
	}
	t := models.FrameType(gjson.GetBytes(frame, "type").String())
	c.metrics.frames.WithLabelValues(string(t)).Inc()
	c.emit(&PacketEvent{Type: t, Raw: frame})

	if t == models.FrameBulk {
		gjson.GetBytes(frame, "v").ForEach(func(_, v gjson.Result) bool {
			c.handleFrame(ctx, l, []byte(v.Raw))
			return true
		})
		return
	}

	if err := c.process(ctx, l, t, frame); err != nil {
		c.metrics.frameErrors.Inc()
		c.logger.Error("frame handler failed", "frame_type", t, "error", err)
	}
}

func (c *Client) process(ctx context.Context, l *link, t models.FrameType, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch t {
	case models.FrameError:
		return c.onError(l, frame)
	case models.FrameAuthenticated:
		c.session.authenticated(l)
		c.emit(&ConnectedEvent{})
		return nil
	case models.FrameReady:
		return c.onReady(l, frame)
	case models.FramePong:
		var f models.PongFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return err
		}
		c.session.pong(l, f.Data)
		return nil

	case models.FrameMessage:
		return c.onMessage(ctx, frame)
	case models.FrameMessageUpdate:
		return c.onMessageUpdate(frame)
	case models.FrameMessageAppend:
		return c.onMessageAppend(frame)
	case models.FrameMessageDelete:
		return c.onMessageDelete(frame)
	case models.FrameMessageReact, models.FrameMessageUnreact, models.FrameMessageRemoveReaction:
		return c.onReaction(t, frame)
	case models.FrameBulkMessageDelete:
		return c.onBulkMessageDelete(frame)

	case models.FrameChannelCreate:
		return c.onChannelCreate(ctx, frame)
	case models.FrameChannelUpdate:
		return c.onChannelUpdate(frame)
	case models.FrameChannelDelete:
		return c.onChannelDelete(frame)
	case models.FrameChannelGroupJoin:
		return c.onGroupJoin(ctx, frame)
	case models.FrameChannelGroupLeave:
		return c.onGroupLeave(frame)
	case models.FrameChannelStartTyping:
		return c.onStartTyping(frame)
	case models.FrameChannelStopTyping:
		return c.onStopTyping(frame)
	case models.FrameChannelAck:
		var f models.ChannelAckFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return err
		}
		return c.Unreads.MarkRead(ctx, f.ID, f.MessageID, false)

	case models.FrameServerCreate:
		return c.onServerCreate(ctx, frame)
	case models.FrameServerUpdate:
		return c.onServerUpdate(frame)
	case models.FrameServerDelete:
		var f models.IDFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return err
		}
		c.emit(&ServerExitedEvent{ID: f.ID, Server: c.Servers.remove(f.ID)})
		return nil
	case models.FrameServerMemberJoin:
		return c.onMemberJoin(ctx, frame)
	case models.FrameServerMemberLeave:
		return c.onMemberLeave(frame)
	case models.FrameServerMemberUpdate:
		return c.onMemberUpdate(frame)
	case models.FrameServerRoleUpdate:
		return c.onRoleUpdate(frame)
	case models.FrameServerRoleDelete:
		return c.onRoleDelete(frame)

	case models.FrameUserUpdate:
		return c.onUserUpdate(frame)
	case models.FrameUserRelationship:
		return c.onRelationship(frame)
	case models.FrameEmojiCreate:
		data, err := payload(frame)
		if err != nil {
			return err
		}
		e, err := c.Emojis.Construct(data)
		if err != nil {
			return err
		}
		c.emit(&EmojiCreateEvent{Emoji: e})
		return nil
	case models.FrameEmojiDelete:
		var f models.IDFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return err
		}
		e := c.Emojis.Get(f.ID)
		c.Emojis.Delete(f.ID)
		c.emit(&EmojiDeleteEvent{ID: f.ID, Emoji: e})
		return nil
	}

	c.logger.Debug("ignoring unknown frame", "frame_type", t)
	return nil
}

// payload is a frame without its "type" discriminator, for frames that
// carry an entity record inline.
func payload(frame []byte) (json.RawMessage, error) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(frame, &rec); err != nil {
		return nil, err
	}
	delete(rec, "type")
	return json.Marshal(rec)
}

// onError fails a pending Connect. Once the link is ready an Error frame is
// only reported.
func (c *Client) onError(l *link, frame []byte) error {
	var f models.ErrorFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	perr := &ProtocolError{Type: f.Error}
	if c.session.currentState() != StateReady {
		l.resolve(perr)
		c.session.drop(l)
		return nil
	}
	return perr
}

func (c *Client) onReady(l *link, frame []byte) error {
	if err := c.applyReady(frame); err != nil {
		err = fmt.Errorf("apply ready: %w", err)
		l.resolve(err)
		c.session.drop(l)
		return err
	}

	c.session.ready(l)
	c.emit(&ReadyEvent{})

	if _, t := c.api.Token(); t == TokenUser {
		go func() {
			if err := c.Unreads.Sync(l.ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("unread sync failed", "error", err)
			}
		}()
	}
	return nil
}

// applyReady loads the snapshot in order: users, channels, servers, then
// members (which need their server) and emoji. Cross references resolve
// lazily, so only the member step depends on what came before.
func (c *Client) applyReady(frame []byte) error {
	var f models.ReadyFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	for _, u := range f.Users {
		if _, err := c.Users.Construct(u); err != nil {
			return err
		}
	}
	for _, ch := range f.Channels {
		if _, err := c.Channels.Construct(ch); err != nil {
			return err
		}
	}
	for _, s := range f.Servers {
		if _, err := c.Servers.Construct(s); err != nil {
			return err
		}
	}
	for _, m := range f.Members {
		s := c.Servers.Get(gjson.GetBytes(m, "_id.server").String())
		if s == nil {
			continue
		}
		if _, err := s.Members.Construct(m); err != nil {
			return err
		}
	}
	for _, e := range f.Emojis {
		if _, err := c.Emojis.Construct(e); err != nil {
			return err
		}
	}
	return nil
}

// onMessage makes sure everything the message refers to is cached before
// the message itself is stored and announced.
func (c *Client) onMessage(ctx context.Context, frame []byte) error {
	data, err := payload(frame)
	if err != nil {
		return err
	}
	var rec models.Message
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	author := rec.Author
	if author == models.DeadID {
		author = ""
		if rec.System != nil {
			author = rec.System.Actor()
		}
	}
	if author != "" {
		if _, err := c.Users.Fetch(ctx, author, false); err != nil {
			return err
		}
	}

	ch, err := c.Channels.Fetch(ctx, rec.Channel)
	if err != nil {
		return err
	}
	if ch.IsServerBased() {
		s, err := c.Servers.Fetch(ctx, ch.ServerID(), false)
		if err != nil {
			return err
		}
		if rec.Author != models.DeadID {
			if _, err := s.Members.Fetch(ctx, rec.Author, false); err != nil {
				c.logger.Warn("message author is not a member", "server", s.ID(), "user", rec.Author, "error", err)
			}
		}
	}
	if ch.Messages() == nil {
		return fmt.Errorf("message %s in %s: %w", rec.ID, ch.ID(), ErrUnsupported)
	}

	msg, err := ch.Messages().Construct(data)
	if err != nil {
		return err
	}
	patch := models.Patch{"last_message_id": rawJSON(msg.ID())}
	if ch.IsDM() {
		patch["active"] = rawJSON(true)
	}
	if err := ch.update(patch, nil); err != nil {
		return err
	}

	c.emit(&MessageEvent{Message: msg})
	if msg.MentionsSelf() {
		c.Unreads.MarkMention(msg)
	}
	return nil
}

func (c *Client) cachedMessage(channelID, id string) *Message {
	ch := c.Channels.Get(channelID)
	if ch == nil || ch.Messages() == nil {
		return nil
	}
	return ch.Messages().Get(id)
}

func (c *Client) onMessageUpdate(frame []byte) error {
	var f models.MessageUpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	msg := c.cachedMessage(f.Channel, f.ID)
	if msg == nil {
		return nil
	}
	if err := msg.update(f.Data, nil); err != nil {
		return err
	}
	c.emit(&MessageUpdateEvent{Message: msg})
	return nil
}

func (c *Client) onMessageAppend(frame []byte) error {
	var f models.MessageAppendFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	msg := c.cachedMessage(f.Channel, f.ID)
	if msg == nil || msg.Kind() != MessageUser {
		return nil
	}
	if err := msg.appendEmbeds(f.Append.Embeds); err != nil {
		return err
	}
	c.emit(&MessageUpdateEvent{Message: msg})
	return nil
}

func (c *Client) onMessageDelete(frame []byte) error {
	var f models.MessageDeleteFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	c.deleteMessage(f.Channel, f.ID)
	return nil
}

func (c *Client) onBulkMessageDelete(frame []byte) error {
	var f models.BulkMessageDeleteFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	for _, id := range f.IDs {
		c.deleteMessage(f.Channel, id)
	}
	return nil
}

func (c *Client) deleteMessage(channelID, id string) {
	ch := c.Channels.Get(channelID)
	if ch == nil || ch.Messages() == nil {
		return
	}
	msg := ch.Messages().Get(id)
	ch.Messages().Delete(id)
	c.emit(&MessageDeleteEvent{ID: id, ChannelID: channelID, Message: msg})
}

func (c *Client) onReaction(t models.FrameType, frame []byte) error {
	var f models.ReactionFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	msg := c.cachedMessage(f.ChannelID, f.ID)
	if msg == nil {
		return nil
	}

	var err error
	switch t {
	case models.FrameMessageReact:
		err = msg.addReaction(f.EmojiID, f.UserID)
	case models.FrameMessageUnreact:
		err = msg.removeReaction(f.EmojiID, f.UserID)
	default:
		err = msg.clearReaction(f.EmojiID)
	}
	if err != nil {
		return err
	}
	c.emit(&MessageUpdateEvent{Message: msg})
	return nil
}

func (c *Client) onChannelCreate(ctx context.Context, frame []byte) error {
	data, err := payload(frame)
	if err != nil {
		return err
	}
	var rec models.Channel
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	if rec.ChannelType == models.ChannelTypeText || rec.ChannelType == models.ChannelTypeVoice {
		s, err := c.Servers.Fetch(ctx, rec.Server, false)
		if err != nil {
			return err
		}
		s.addChannel(rec.ID)
	}
	ch, err := c.Channels.Construct(data)
	if err != nil {
		return err
	}
	c.emit(&ChannelCreateEvent{Channel: ch})
	return nil
}

func (c *Client) onChannelUpdate(frame []byte) error {
	var f models.UpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	ch := c.Channels.Get(f.ID)
	if ch == nil {
		return nil
	}
	if err := ch.update(f.Data, f.Clear); err != nil {
		return err
	}
	c.emit(&ChannelUpdateEvent{Channel: ch})
	return nil
}

func (c *Client) onChannelDelete(frame []byte) error {
	var f models.IDFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	ch := c.Channels.Get(f.ID)
	if ch != nil {
		if s := ch.Server(); s != nil {
			s.removeChannel(f.ID)
		}
	}
	c.Channels.Delete(f.ID)
	c.emit(&ChannelDeleteEvent{ID: f.ID, Channel: ch})
	return nil
}

func (c *Client) onGroupJoin(ctx context.Context, frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	ch := c.Channels.Get(f.ID)
	if ch == nil {
		return nil
	}
	u, err := c.Users.Fetch(ctx, f.User, false)
	if err != nil {
		return err
	}
	if ids := ch.RecipientIDs(); !slices.Contains(ids, f.User) {
		if err := ch.update(models.Patch{"recipients": rawJSON(append(ids, f.User))}, nil); err != nil {
			return err
		}
	}
	c.emit(&GroupMemberJoinEvent{Group: ch, User: u})
	return nil
}

func (c *Client) onGroupLeave(frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	ch := c.Channels.Get(f.ID)
	if ch == nil {
		return nil
	}
	if f.User == c.selfID() {
		c.Channels.Delete(f.ID)
		c.emit(&GroupExitedEvent{ID: f.ID, Group: ch})
		return nil
	}
	ids := slices.DeleteFunc(ch.RecipientIDs(), func(id string) bool { return id == f.User })
	if err := ch.update(models.Patch{"recipients": rawJSON(ids)}, nil); err != nil {
		return err
	}
	c.emit(&GroupMemberLeaveEvent{Group: ch, UserID: f.User})
	return nil
}

func (c *Client) onStartTyping(frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	ch := c.Channels.Get(f.ID)
	if ch == nil {
		return nil
	}
	if ch.startTyping(f.User) {
		c.emit(&ChannelStartTypingEvent{Channel: ch, UserID: f.User})
	}
	c.session.armTyping(ch, f.User)
	return nil
}

func (c *Client) onStopTyping(frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	c.session.cancelTyping(f.ID, f.User)
	if ch := c.Channels.Get(f.ID); ch != nil {
		c.stopTyping(ch, f.User)
	}
	return nil
}

func (c *Client) stopTyping(ch *Channel, user string) {
	if ch.stopTyping(user) {
		c.emit(&ChannelStopTypingEvent{Channel: ch, UserID: user})
	}
}

func (c *Client) onServerCreate(ctx context.Context, frame []byte) error {
	var f models.ServerCreateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s, err := c.Servers.FetchWith(ctx, f.Server, f.Channels)
	if err != nil {
		return err
	}
	c.emit(&ServerCreateEvent{Server: s})
	return nil
}

func (c *Client) onServerUpdate(frame []byte) error {
	var f models.UpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s := c.Servers.Get(f.ID)
	if s == nil {
		return nil
	}
	if err := s.update(f.Data, f.Clear); err != nil {
		return err
	}
	c.emit(&ServerUpdateEvent{Server: s})
	return nil
}

func (c *Client) onMemberJoin(ctx context.Context, frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s, err := c.Servers.Fetch(ctx, f.ID, false)
	if err != nil {
		return err
	}
	if _, err := c.Users.Fetch(ctx, f.User, false); err != nil {
		return err
	}
	rec := map[string]any{
		"_id":       models.MemberID{Server: f.ID, User: f.User},
		"joined_at": c.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	m, err := s.Members.Construct(rawJSON(rec))
	if err != nil {
		return err
	}
	c.emit(&ServerMemberJoinEvent{Member: m})
	return nil
}

func (c *Client) onMemberLeave(frame []byte) error {
	var f models.ChannelUserFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	if f.User == c.selfID() {
		c.emit(&ServerExitedEvent{ID: f.ID, Server: c.Servers.remove(f.ID)})
		return nil
	}
	s := c.Servers.Get(f.ID)
	if s == nil {
		return nil
	}
	s.Members.Delete(f.User)
	c.emit(&ServerMemberLeaveEvent{Server: s, UserID: f.User, User: c.Users.Get(f.User)})
	return nil
}

func (c *Client) onMemberUpdate(frame []byte) error {
	var f models.ServerMemberUpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s := c.Servers.Get(f.ID.Server)
	if s == nil {
		return nil
	}
	m := s.Members.Get(f.ID.User)
	if m == nil {
		return nil
	}
	if err := m.update(f.Data, f.Clear); err != nil {
		return err
	}
	c.emit(&ServerMemberUpdateEvent{Member: m})
	return nil
}

func (c *Client) onRoleUpdate(frame []byte) error {
	var f models.ServerRoleUpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s := c.Servers.Get(f.ID)
	if s == nil {
		return nil
	}
	existed := s.Roles.Has(f.RoleID)
	if err := s.mergeRole(f.RoleID, f.Data, f.Clear); err != nil {
		return err
	}
	role := s.Roles.Get(f.RoleID)
	if role == nil {
		return fmt.Errorf("role %s missing after update", f.RoleID)
	}
	if existed {
		c.emit(&ServerRoleUpdateEvent{Role: role})
	} else {
		c.emit(&ServerRoleCreateEvent{Role: role})
	}
	return nil
}

func (c *Client) onRoleDelete(frame []byte) error {
	var f models.ServerRoleDeleteFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s := c.Servers.Get(f.ID)
	if s == nil {
		return nil
	}
	role := s.Roles.Get(f.RoleID)
	if err := s.deleteRole(f.RoleID); err != nil {
		return err
	}
	c.emit(&ServerRoleDeleteEvent{ServerID: f.ID, RoleID: f.RoleID, Role: role})
	return nil
}

func (c *Client) onUserUpdate(frame []byte) error {
	var f models.UpdateFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	u := c.Users.Get(f.ID)
	if u == nil {
		return nil
	}
	if err := u.update(f.Data, f.Clear); err != nil {
		return err
	}
	c.emit(&UserUpdateEvent{User: u})
	return nil
}

func (c *Client) onRelationship(frame []byte) error {
	var f models.UserRelationshipFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(f.User, &rec); err != nil {
		return err
	}
	rec["relationship"] = rawJSON(f.Status)
	u, err := c.Users.Construct(rawJSON(rec))
	if err != nil {
		return err
	}
	c.emit(&UserRelationshipUpdateEvent{User: u})
	return nil
}

// resetPresence forgets everything that is only true while connected.
func (c *Client) resetPresence() {
	c.session.clearTyping()
	for _, u := range c.Users.Items() {
		if u.Online() {
			if err := u.update(models.Patch{"online": rawJSON(false)}, nil); err != nil {
				c.logger.Error("mark user offline", "user", u.ID(), "error", err)
			}
		}
	}
	for _, ch := range c.Channels.Items() {
		ch.clearTyping()
	}
}
