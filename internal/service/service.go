package service

import (
	"context"
	"time"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/oauth"
	"github.com/gleadbet/nest/internal/repository"
	"github.com/gleadbet/nest/internal/sdm"
	"github.com/gleadbet/nest/internal/session"
)

// Devices is the gateway to the upstream device API: cached reads, writes
// and the per-session name overlay. Errors carry a nest.Kind.
type Devices interface {
	List(ctx context.Context, sess *session.Session, force bool) ([]nest.Device, error)
	Get(ctx context.Context, sess *session.Session, deviceID string) (nest.Device, error)
	History(ctx context.Context, sess *session.Session, deviceID string, from, to time.Time) ([]nest.Reading, error)
	SetTemperature(ctx context.Context, sess *session.Session, deviceID string, kind nest.Mode, valueC float64) ([]nest.Device, error)
	SetMode(ctx context.Context, sess *session.Session, deviceID string, mode nest.Mode) ([]nest.Device, error)
	Rename(ctx context.Context, sess *session.Session, deviceID, name string) error
}

// AuthStatus is the payload of GET /api/auth/status.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

// Auth owns login, session resolution and logout.
type Auth interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*session.Session, string, error)
	Resolve(ctx context.Context, cookie string) (*session.Session, error)
	Status(sess *session.Session) AuthStatus
	Logout(ctx context.Context, sess *session.Session) error
}

// Realtime fans device updates out to websocket subscribers. Subscriptions
// are cancelable streams, independent of the transport.
type Realtime interface {
	Subscribe(deviceID string) (<-chan nest.Device, func())
	Publish(d nest.Device)
}

// UpstreamClient is the slice of *sdm.Client the gateway needs.
type UpstreamClient interface {
	ListDevices(ctx context.Context, accessToken string) ([]sdm.RawDevice, error)
	GetDevice(ctx context.Context, accessToken, deviceID string) (sdm.RawDevice, error)
	ExecuteCommand(ctx context.Context, accessToken, deviceID, command string, params map[string]any) error
}

// TokenSource is the slice of *oauth.Authenticator the gateway needs.
type TokenSource interface {
	Valid(cred *session.Credential, now time.Time) bool
	Refresh(ctx context.Context, cred *session.Credential) (*session.Credential, error)
}

// Provider is the slice of *oauth.Authenticator the auth service needs.
type Provider interface {
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*session.Credential, error)
}

type Service struct {
	Devices
	Auth
	Realtime
}

type Deps struct {
	Repos    *repository.Repository
	Upstream UpstreamClient
	OAuth    *oauth.Authenticator
	Codec    *session.CookieCodec
	Log      *logger.Logger
	CacheTTL time.Duration
	Clock    func() time.Time
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	hub := NewHub()
	return &Service{
		Devices:  NewDeviceService(d.Repos.Sessions, d.Repos.Readings, d.Upstream, d.OAuth, hub, d.CacheTTL, d.Clock, d.Log),
		Auth:     NewAuthService(d.OAuth, d.Repos.Sessions, d.Codec, d.Log),
		Realtime: hub,
	}
}
