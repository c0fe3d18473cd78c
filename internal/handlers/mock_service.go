package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/service"
	"github.com/gleadbet/nest/internal/session"
)

// ---- Service Mocks ----

type mockAuth struct {
	loginURL    string
	callbackRes *session.Session
	callbackCk  string
	callbackErr error
	resolved    *session.Session
	resolveErr  error
	status      service.AuthStatus
	logoutErr   error

	lastState   string
	lastCode    string
	lastCookie  string
	logoutCalls int
}

func (m *mockAuth) LoginURL(state string) string {
	m.lastState = state
	return m.loginURL
}

func (m *mockAuth) HandleCallback(ctx context.Context, code string) (*session.Session, string, error) {
	m.lastCode = code
	return m.callbackRes, m.callbackCk, m.callbackErr
}

func (m *mockAuth) Resolve(ctx context.Context, cookie string) (*session.Session, error) {
	m.lastCookie = cookie
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.resolved, nil
}

func (m *mockAuth) Status(sess *session.Session) service.AuthStatus {
	return m.status
}

func (m *mockAuth) Logout(ctx context.Context, sess *session.Session) error {
	m.logoutCalls++
	return m.logoutErr
}

type mockDevices struct {
	devices  []nest.Device
	device   nest.Device
	readings []nest.Reading
	listErr  error
	getErr   error
	histErr  error
	writeErr error

	lastForce    bool
	lastDeviceID string
	lastKind     nest.Mode
	lastValueC   float64
	lastMode     nest.Mode
	lastName     string
	lastFrom     time.Time
	lastTo       time.Time
	listCalls    int
}

func (m *mockDevices) List(ctx context.Context, sess *session.Session, force bool) ([]nest.Device, error) {
	m.listCalls++
	m.lastForce = force
	return m.devices, m.listErr
}

func (m *mockDevices) Get(ctx context.Context, sess *session.Session, deviceID string) (nest.Device, error) {
	m.lastDeviceID = deviceID
	if m.getErr != nil {
		return nest.Device{}, m.getErr
	}
	return m.device, nil
}

func (m *mockDevices) History(ctx context.Context, sess *session.Session, deviceID string, from, to time.Time) ([]nest.Reading, error) {
	m.lastDeviceID = deviceID
	m.lastFrom = from
	m.lastTo = to
	return m.readings, m.histErr
}

func (m *mockDevices) SetTemperature(ctx context.Context, sess *session.Session, deviceID string, kind nest.Mode, valueC float64) ([]nest.Device, error) {
	m.lastDeviceID = deviceID
	m.lastKind = kind
	m.lastValueC = valueC
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	return m.devices, nil
}

func (m *mockDevices) SetMode(ctx context.Context, sess *session.Session, deviceID string, mode nest.Mode) ([]nest.Device, error) {
	m.lastDeviceID = deviceID
	m.lastMode = mode
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	return m.devices, nil
}

func (m *mockDevices) Rename(ctx context.Context, sess *session.Session, deviceID, name string) error {
	m.lastDeviceID = deviceID
	m.lastName = name
	return m.writeErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, time.Hour, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authedSession() *session.Session {
	return &session.Session{
		ID:         "sess-1",
		Credential: &session.Credential{AccessToken: "at"},
	}
}

// authedService builds a Service whose Resolve accepts any cookie.
func authedService(devices *mockDevices) (*service.Service, *mockAuth) {
	auth := &mockAuth{
		resolved: authedSession(),
		status:   service.AuthStatus{Authenticated: true},
	}
	return &service.Service{
		Devices:  devices,
		Auth:     auth,
		Realtime: service.NewHub(),
	}, auth
}

func sessionCookie(req *http.Request, value string) {
	if value != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: value})
	}
}
