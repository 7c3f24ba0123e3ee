package revkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/clock"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/content"
	"github.com/Revolt-Unofficial-Clients/revkit/internal/rest"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// TokenType selects how the session token is sent.
type TokenType = rest.TokenType

const (
	TokenUser = rest.TokenUser
	TokenBot  = rest.TokenBot
)

// Client is a connection to one Revolt instance and the local mirror of
// everything the logged-in account can see.
type Client struct {
	cfg     Config
	api     *rest.Client
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics

	Users    *UserManager
	Channels *ChannelManager
	Servers  *ServerManager
	Emojis   *EmojiManager
	Unreads  *UnreadManager

	session *session
	events  notifier[Event]

	configMu sync.RWMutex
	config   *models.Config
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	api, err := rest.New(rest.Config{
		BaseURL:           cfg.APIURL,
		HTTPClient:        cfg.HTTPClient,
		Logger:            cfg.Logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		api:    api,
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
	c.metrics, err = newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	c.Users = newUserManager(c)
	c.Channels = newChannelManager(c)
	c.Servers = newServerManager(c)
	c.Emojis = newEmojiManager(c)
	c.Unreads = newUnreadManager(c)
	c.session = newSession(c)
	return c, nil
}

func (c *Client) selfID() string {
	c.Users.mu.RLock()
	defer c.Users.mu.RUnlock()
	return c.Users.selfID
}

// User is the logged-in user, nil before Ready.
func (c *Client) User() *User { return c.Users.Self() }

// Configuration returns the instance configuration fetched last, or nil.
func (c *Client) Configuration() *models.Config {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	return c.config
}

// FetchConfiguration loads the instance configuration from the API root.
// The cached copy is returned unless force is set.
func (c *Client) FetchConfiguration(ctx context.Context, force bool) (*models.Config, error) {
	if cfg := c.Configuration(); cfg != nil && !force {
		return cfg, nil
	}
	var cfg models.Config
	if err := c.api.Get(ctx, "/", &cfg); err != nil {
		return nil, fmt.Errorf("fetch configuration: %w", err)
	}
	c.configMu.Lock()
	c.config = &cfg
	c.configMu.Unlock()
	return &cfg, nil
}

func (c *Client) requireConfiguration() (*models.Config, error) {
	cfg := c.Configuration()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

// FetchAutumnConfiguration describes the attachment service. It returns nil
// when the instance has it disabled.
func (c *Client) FetchAutumnConfiguration(ctx context.Context) (*models.AutumnConfig, error) {
	cfg, err := c.requireConfiguration()
	if err != nil || !cfg.Features.Autumn.Enabled {
		return nil, err
	}
	var out models.AutumnConfig
	if err := c.api.Get(ctx, cfg.Features.Autumn.URL, &out); err != nil {
		return nil, fmt.Errorf("fetch autumn configuration: %w", err)
	}
	return &out, nil
}

// FetchJanuaryConfiguration describes the link proxy, nil when disabled.
func (c *Client) FetchJanuaryConfiguration(ctx context.Context) (*models.JanuaryConfig, error) {
	cfg, err := c.requireConfiguration()
	if err != nil || !cfg.Features.January.Enabled {
		return nil, err
	}
	var out models.JanuaryConfig
	if err := c.api.Get(ctx, cfg.Features.January.URL, &out); err != nil {
		return nil, fmt.Errorf("fetch january configuration: %w", err)
	}
	return &out, nil
}

// FetchVortexConfiguration describes the voice service, nil when disabled.
func (c *Client) FetchVortexConfiguration(ctx context.Context) (*models.VortexConfig, error) {
	cfg, err := c.requireConfiguration()
	if err != nil || !cfg.Features.Voso.Enabled {
		return nil, err
	}
	var out models.VortexConfig
	if err := c.api.Get(ctx, cfg.Features.Voso.URL, &out); err != nil {
		return nil, fmt.Errorf("fetch vortex configuration: %w", err)
	}
	return &out, nil
}

// Login uses an existing session token. With connect set it also opens the
// WebSocket and waits for Ready.
func (c *Client) Login(ctx context.Context, token string, t TokenType, connect bool) error {
	if token == "" {
		return ErrNoSession
	}
	c.api.SetToken(token, t)
	if _, err := c.FetchConfiguration(ctx, false); err != nil {
		return err
	}
	if !connect {
		return nil
	}
	return c.Connect(ctx)
}

// LoginResult tells what Authenticate needs next. The zero value means the
// client is logged in.
type LoginResult struct {
	// MFATicket is set when a second factor is required. Answer with
	// RespondMFA.
	MFATicket  string
	MFAMethods []string
	// Onboarding is set when the account has no username yet. Finish with
	// CompleteOnboarding.
	Onboarding bool
}

// Authenticate logs in with an email and password and connects.
func (c *Client) Authenticate(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	var res models.LoginResponse
	if err := c.api.Post(ctx, "/auth/session/login", req, &res); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c.finishLogin(ctx, res)
}

// RespondMFA answers the second factor challenge from Authenticate.
func (c *Client) RespondMFA(ctx context.Context, ticket string, answer models.MFAResponse) (*LoginResult, error) {
	req := models.LoginRequest{MFATicket: ticket, MFAResponse: &answer}
	var res models.LoginResponse
	if err := c.api.Post(ctx, "/auth/session/login", req, &res); err != nil {
		return nil, fmt.Errorf("mfa login: %w", err)
	}
	return c.finishLogin(ctx, res)
}

func (c *Client) finishLogin(ctx context.Context, res models.LoginResponse) (*LoginResult, error) {
	switch res.Result {
	case models.LoginResultMFA:
		return &LoginResult{MFATicket: res.Ticket, MFAMethods: res.AllowedMethods}, nil
	case models.LoginResultDisabled:
		return nil, errors.New("revkit: account is disabled")
	}
	if res.Token == "" {
		return nil, fmt.Errorf("login: unexpected result %q", res.Result)
	}

	c.api.SetToken(res.Token, TokenUser)
	var hello models.OnboardHello
	if err := c.api.Get(ctx, "/onboard/hello", &hello); err != nil {
		return nil, fmt.Errorf("onboard: %w", err)
	}
	if hello.Onboarding {
		return &LoginResult{Onboarding: true}, nil
	}
	if err := c.Login(ctx, res.Token, TokenUser, true); err != nil {
		return nil, err
	}
	return &LoginResult{}, nil
}

// CompleteOnboarding picks the username of a new account. With connect set
// the client logs in afterwards.
func (c *Client) CompleteOnboarding(ctx context.Context, username string, connect bool) error {
	if err := content.ValidateUsername(username); err != nil {
		return err
	}
	if err := c.api.Post(ctx, "/onboard/complete", map[string]string{"username": username}, nil); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	if !connect {
		return nil
	}
	token, t := c.api.Token()
	return c.Login(ctx, token, t, true)
}

type GroupCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Users       []string `json:"users"`
	NSFW        bool     `json:"nsfw,omitempty"`
}

func (c *Client) CreateGroup(ctx context.Context, data GroupCreate) (*Channel, error) {
	if data.Users == nil {
		data.Users = []string{}
	}
	var raw json.RawMessage
	if err := c.api.Post(ctx, "/channels/create", data, &raw); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return c.Channels.Construct(raw)
}

type UserEdit struct {
	DisplayName *string             `json:"display_name,omitempty"`
	Avatar      *string             `json:"avatar,omitempty"`
	Status      *models.UserStatus  `json:"status,omitempty"`
	Profile     *models.UserProfile `json:"profile,omitempty"`
	Remove      []string            `json:"remove,omitempty"`
}

// EditUser changes the logged-in user's profile.
func (c *Client) EditUser(ctx context.Context, edit UserEdit) error {
	var patch models.Patch
	if err := c.api.Patch(ctx, "/users/@me", edit, &patch); err != nil {
		return fmt.Errorf("edit user: %w", err)
	}
	return c.patchSelf(patch, edit.Remove)
}

func (c *Client) ChangeUsername(ctx context.Context, username, password string) error {
	if err := content.ValidateUsername(username); err != nil {
		return err
	}
	body := map[string]string{"username": username, "password": password}
	var patch models.Patch
	if err := c.api.Patch(ctx, "/users/@me/username", body, &patch); err != nil {
		return fmt.Errorf("change username: %w", err)
	}
	return c.patchSelf(patch, nil)
}

func (c *Client) patchSelf(patch models.Patch, clear []string) error {
	self := c.User()
	if self == nil {
		return nil
	}
	// The response may omit the relationship field.
	delete(patch, "relationship")
	return self.update(patch, clear)
}

func (c *Client) FetchInvite(ctx context.Context, code string) (*models.Invite, error) {
	var inv models.Invite
	if err := c.api.Get(ctx, "/invites/"+code, &inv); err != nil {
		return nil, fmt.Errorf("fetch invite: %w", err)
	}
	return &inv, nil
}

// Joined is what accepting an invite added: a server with its channels, or
// a group.
type Joined struct {
	Server *Server
	Group  *Channel
}

func (c *Client) AcceptInvite(ctx context.Context, code string) (*Joined, error) {
	var res struct {
		Type     string            `json:"type"`
		Channel  json.RawMessage   `json:"channel"`
		Server   json.RawMessage   `json:"server"`
		Channels []json.RawMessage `json:"channels"`
	}
	if err := c.api.Post(ctx, "/invites/"+code, nil, &res); err != nil {
		return nil, fmt.Errorf("accept invite: %w", err)
	}

	if res.Type == "Server" {
		s, err := c.Servers.FetchWith(ctx, res.Server, res.Channels)
		if err != nil {
			return nil, err
		}
		return &Joined{Server: s}, nil
	}
	ch, err := c.Channels.Construct(res.Channel)
	if err != nil {
		return nil, err
	}
	return &Joined{Group: ch}, nil
}

// SubscribePush registers a Web Push subscription for notifications. sub is
// the browser's PushSubscription as decoded by webpush-go; only its endpoint
// and keys are sent.
func (c *Client) SubscribePush(ctx context.Context, sub *webpush.Subscription) error {
	body := map[string]string{
		"endpoint": sub.Endpoint,
		"p256dh":   sub.Keys.P256dh,
		"auth":     sub.Keys.Auth,
	}
	if err := c.api.Post(ctx, "/push/subscribe", body, nil); err != nil {
		return fmt.Errorf("subscribe push: %w", err)
	}
	return nil
}

func (c *Client) UnsubscribePush(ctx context.Context) error {
	return c.api.Post(ctx, "/push/unsubscribe", nil, nil)
}

// Ping is the round trip time of the last heartbeat.
func (c *Client) Ping() time.Duration { return c.session.latency() }

func (c *Client) State() State { return c.session.currentState() }

// Fatal delivers ErrPongTimeout when ExitOnTimeout is set and the server
// stopped answering heartbeats. The session is already closed by then.
func (c *Client) Fatal() <-chan error { return c.session.fatal }

// Connect opens the WebSocket and blocks until the Ready snapshot was
// applied. Login must have been called first.
func (c *Client) Connect(ctx context.Context) error {
	return c.session.connect(ctx)
}

// Disconnect closes the WebSocket without reconnecting. The cache is kept.
func (c *Client) Disconnect() {
	c.session.disconnect()
}

// Destroy disconnects, optionally ends the session on the server, and
// empties every collection. It waits for the WebSocket to finish closing,
// so it must not be called from an event handler.
func (c *Client) Destroy(ctx context.Context, logout bool) error {
	if err := c.session.shutdown(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	var err error
	if token, _ := c.api.Token(); logout && token != "" {
		if err = c.api.Post(ctx, "/auth/session/logout", nil, nil); err != nil {
			err = fmt.Errorf("logout: %w", err)
		}
	}
	c.api.SetToken("", TokenUser)

	for _, s := range c.Servers.Items() {
		s.Members.clear()
		s.Roles.clear()
	}
	c.Servers.clear()
	c.Channels.clear()
	c.Emojis.clear()
	c.Users.clear()
	c.Unreads.clear()

	c.emit(&DestroyedEvent{})
	return err
}
