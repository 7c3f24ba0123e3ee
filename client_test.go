package revkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/rest"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/revolttest"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

func TestLoginFetchesConfiguration(t *testing.T) {
	env := newTestEnv(t)

	cfg := env.client.Configuration()
	require.NotNil(t, cfg)
	assert.Equal(t, env.server.WSURL(), cfg.WS)

	reqs := env.server.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, revolttest.Token, reqs[0].Header.Get("X-Bot-Token"))
	assert.Equal(t, StateDisconnected, env.client.State())
}

func TestFeatureConfiguration(t *testing.T) {
	env := newTestEnv(t)
	env.server.Handle(http.MethodGet, "/autumn", http.StatusOK, map[string]any{
		"autumn": "1.0",
		"tags":   map[string]any{"attachments": map[string]any{"max_size": 20000000, "enabled": true}},
	})
	ctx := context.Background()

	autumn, err := env.client.FetchAutumnConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20000000), autumn.Tags["attachments"].MaxSize)

	vortex, err := env.client.FetchVortexConfiguration(ctx)
	require.NoError(t, err)
	assert.Nil(t, vortex, "voice is disabled on the fake instance")

	_, err = env.client.FetchJanuaryConfiguration(ctx)
	var apiErr *rest.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestFeatureConfigurationRequiresLogin(t *testing.T) {
	c, err := New(Config{APIURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.FetchAutumnConfiguration(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthenticateWithMFA(t *testing.T) {
	srv := revolttest.New(t)
	srv.SetReady(readyFrame())
	srv.HandleFunc(http.MethodPost, "/auth/session/login", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if gjson.GetBytes(body, "mfa_ticket").String() == "" {
			_ = json.NewEncoder(w).Encode(models.LoginResponse{Result: models.LoginResultMFA, Ticket: "T", AllowedMethods: []string{"Totp"}})
			return
		}
		if gjson.GetBytes(body, "mfa_response.totp_code").String() != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type":"InvalidToken"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Result: models.LoginResultSuccess, Token: revolttest.Token})
	})
	srv.Handle(http.MethodGet, "/onboard/hello", http.StatusOK, models.OnboardHello{})

	c, err := New(Config{APIURL: srv.URL(), RequestsPerSecond: -1})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	ctx := context.Background()

	res, err := c.Authenticate(ctx, models.LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "T", res.MFATicket)
	assert.Equal(t, []string{"Totp"}, res.MFAMethods)

	_, err = c.RespondMFA(ctx, "T", models.MFAResponse{TOTPCode: "000000"})
	assert.True(t, rest.IsStatus(err, http.StatusUnauthorized))

	res, err = c.RespondMFA(ctx, "T", models.MFAResponse{TOTPCode: "123456"})
	require.NoError(t, err)
	assert.Equal(t, LoginResult{}, *res)
	assert.Equal(t, StateReady, c.State())

	var hello *revolttest.Request
	for _, r := range srv.Requests() {
		if r.Path == "/onboard/hello" {
			hello = &r
		}
	}
	require.NotNil(t, hello)
	assert.Equal(t, revolttest.Token, hello.Header.Get("X-Session-Token"))
}

func TestAuthenticateNeedsOnboarding(t *testing.T) {
	srv := revolttest.New(t)
	srv.Handle(http.MethodPost, "/auth/session/login", http.StatusOK, models.LoginResponse{Result: models.LoginResultSuccess, Token: revolttest.Token})
	srv.Handle(http.MethodGet, "/onboard/hello", http.StatusOK, models.OnboardHello{Onboarding: true})
	srv.Handle(http.MethodPost, "/onboard/complete", http.StatusOK, map[string]any{})

	c, err := New(Config{APIURL: srv.URL(), RequestsPerSecond: -1})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := c.Authenticate(ctx, models.LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, res.Onboarding)

	assert.Error(t, c.CompleteOnboarding(ctx, "x", false))
	require.NoError(t, c.CompleteOnboarding(ctx, "newbie", false))
	assert.True(t, srv.Requested(http.MethodPost, "/onboard/complete"))
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	srv := revolttest.New(t)
	srv.Handle(http.MethodPost, "/auth/session/login", http.StatusOK, models.LoginResponse{Result: models.LoginResultDisabled})

	c, err := New(Config{APIURL: srv.URL(), RequestsPerSecond: -1})
	require.NoError(t, err)
	_, err = c.Authenticate(context.Background(), models.LoginRequest{Email: "a@b.c", Password: "pw"})
	assert.Error(t, err)
}

func TestAcceptInvite(t *testing.T) {
	env := newTestEnv(t)
	env.server.Handle(http.MethodPost, "/invites/abc", http.StatusOK, map[string]any{
		"type":     "Server",
		"server":   serverRec("S2", "someone", []string{"C1", "C2"}, nil),
		"channels": []any{textChannelRec("C1", "S2")},
	})
	env.server.Handle(http.MethodGet, "/channels/C2", http.StatusOK, textChannelRec("C2", "S2"))

	joined, err := env.client.AcceptInvite(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, joined.Server)
	assert.Nil(t, joined.Group)
	assert.Len(t, joined.Server.Channels(), 2)
}

func TestAcceptGroupInvite(t *testing.T) {
	env := newTestEnv(t)
	env.server.Handle(http.MethodPost, "/invites/grp", http.StatusOK, map[string]any{
		"type":    "Group",
		"channel": map[string]any{"_id": "G", "channel_type": "Group", "name": "g", "owner": "o", "recipients": []string{"o"}},
	})

	joined, err := env.client.AcceptInvite(context.Background(), "grp")
	require.NoError(t, err)
	require.NotNil(t, joined.Group)
	assert.True(t, joined.Group.IsGroup())
}

func TestFetchInviteNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.FetchInvite(context.Background(), "nope")
	assert.True(t, rest.IsType(err, "NotFound"))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestEditUserPatchesSelf(t *testing.T) {
	env := newTestEnv(t)
	self := selfRec("me", "me")
	self["status"] = map[string]any{"text": "old"}
	_, err := env.client.Users.Construct(mustJSON(t, self))
	require.NoError(t, err)

	env.server.Handle(http.MethodPatch, "/users/@me", http.StatusOK, map[string]any{
		"_id": "me", "username": "me", "display_name": "Me!",
	})
	name := "Me!"
	require.NoError(t, env.client.EditUser(context.Background(), UserEdit{DisplayName: &name, Remove: []string{"StatusText"}}))

	u := env.client.User()
	assert.Equal(t, "Me!", u.DisplayName())
	assert.Empty(t, u.StatusText())
	assert.Equal(t, models.RelationshipSelf, u.Relationship())
}

func TestSubscribePush(t *testing.T) {
	env := newTestEnv(t)
	env.server.Handle(http.MethodPost, "/push/subscribe", http.StatusNoContent, nil)

	sub := &webpush.Subscription{Endpoint: "https://push.example/1"}
	sub.Keys.P256dh = "key"
	sub.Keys.Auth = "secret"
	require.NoError(t, env.client.SubscribePush(context.Background(), sub))

	var body []byte
	for _, r := range env.server.Requests() {
		if r.Path == "/push/subscribe" {
			body = r.Body
		}
	}
	assert.JSONEq(t, `{"endpoint":"https://push.example/1","p256dh":"key","auth":"secret"}`, string(body))
}

func TestCreateGroup(t *testing.T) {
	env := newTestEnv(t)
	env.server.HandleFunc(http.MethodPost, "/channels/create", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "[]", gjson.GetBytes(body, "users").Raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"G","channel_type":"Group","name":"friends","owner":"me","recipients":["me"]}`))
	})

	ch, err := env.client.CreateGroup(context.Background(), GroupCreate{Name: "friends"})
	require.NoError(t, err)
	assert.Equal(t, "friends", ch.Name())
	assert.Same(t, ch, env.client.Channels.Get("G"))
}
