package models

// Feature is an optional service advertised by the API root.
type Feature struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type VoiceFeature struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	WS      string `json:"ws"`
}

type CaptchaFeature struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key"`
}

type Features struct {
	Captcha    CaptchaFeature `json:"captcha"`
	Email      bool           `json:"email"`
	InviteOnly bool           `json:"invite_only"`
	Autumn     Feature        `json:"autumn"`
	January    Feature        `json:"january"`
	Voso       VoiceFeature   `json:"voso"`
}

type BuildInfo struct {
	CommitSHA       string `json:"commit_sha"`
	CommitTimestamp string `json:"commit_timestamp"`
	Semver          string `json:"semver"`
	OriginURL       string `json:"origin_url"`
	Timestamp       string `json:"timestamp"`
}

// Config is the response of GET /.
type Config struct {
	Revolt   string    `json:"revolt"`
	Features Features  `json:"features"`
	WS       string    `json:"ws"`
	App      string    `json:"app"`
	Vapid    string    `json:"vapid"`
	Build    BuildInfo `json:"build"`
}

// AutumnConfig is the response of GET {autumn}/.
type AutumnConfig struct {
	Autumn string               `json:"autumn"`
	Tags   map[string]AutumnTag `json:"tags"`
}

type AutumnTag struct {
	MaxSize             int64    `json:"max_size"`
	UseULID             bool     `json:"use_ulid"`
	Enabled             bool     `json:"enabled"`
	ServeIfFieldPresent []string `json:"serve_if_field_present"`
	RestrictContentType string   `json:"restrict_content_type,omitempty"`
}

// JanuaryConfig is the response of GET {january}/.
type JanuaryConfig struct {
	January string `json:"january"`
}

// VortexConfig is the response of GET {voso}/.
type VortexConfig struct {
	Vortex   string `json:"vortex"`
	Features struct {
		RTP bool `json:"rtp"`
	} `json:"features"`
	WS string `json:"ws"`
}

// UploadResponse is returned by the attachment service.
type UploadResponse struct {
	ID string `json:"id"`
}

type LoginRequest struct {
	Email        string       `json:"email,omitempty"`
	Password     string       `json:"password,omitempty"`
	FriendlyName string       `json:"friendly_name,omitempty"`
	MFATicket    string       `json:"mfa_ticket,omitempty"`
	MFAResponse  *MFAResponse `json:"mfa_response,omitempty"`
}

type MFAResponse struct {
	Password     string `json:"password,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
	TOTPCode     string `json:"totp_code,omitempty"`
}

const (
	LoginResultSuccess  = "Success"
	LoginResultMFA      = "MFA"
	LoginResultDisabled = "Disabled"
)

type LoginResponse struct {
	Result         string   `json:"result"`
	ID             string   `json:"_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	Token          string   `json:"token,omitempty"`
	Name           string   `json:"name,omitempty"`
	Ticket         string   `json:"ticket,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty"`
}

type OnboardHello struct {
	Onboarding bool `json:"onboarding"`
}
