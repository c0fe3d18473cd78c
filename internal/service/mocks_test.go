package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/repository"
	"github.com/gleadbet/nest/internal/sdm"
	"github.com/gleadbet/nest/internal/session"
)

// ---- fakes ----

type fakeSessions struct {
	mu      sync.Mutex
	store   map[string]*session.Session
	updates int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{store: map[string]*session.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[s.ID] = s
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.store[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Update(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[s.ID]; !ok {
		return repository.ErrSessionNotFound
	}
	f.store[s.ID] = s
	f.updates++
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, id)
	return nil
}

type fakeReadings struct {
	mu       sync.Mutex
	appended []nest.Reading
}

func (f *fakeReadings) Append(_ context.Context, r nest.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, r)
	return nil
}

func (f *fakeReadings) ListRange(_ context.Context, deviceID string, from, to time.Time) ([]nest.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []nest.Reading
	for _, r := range f.appended {
		if r.DeviceID != deviceID {
			continue
		}
		if !from.IsZero() && r.TakenAt.Before(from) {
			continue
		}
		if !to.IsZero() && r.TakenAt.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type executedCommand struct {
	DeviceID string
	Command  string
	Params   map[string]any
}

type fakeUpstream struct {
	mu        sync.Mutex
	devices   []sdm.RawDevice
	listErr   error
	getErr    error
	execErr   error
	listCalls int
	getCalls  int
	executed  []executedCommand
	tokens    []string
}

func (f *fakeUpstream) ListDevices(_ context.Context, token string) ([]sdm.RawDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.tokens = append(f.tokens, token)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeUpstream) GetDevice(_ context.Context, token, deviceID string) (sdm.RawDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return sdm.RawDevice{}, f.getErr
	}
	for _, d := range f.devices {
		if d.ID() == deviceID {
			return d, nil
		}
	}
	return sdm.RawDevice{}, nest.E(nest.KindNotFound, "device %s not found", deviceID)
}

func (f *fakeUpstream) ExecuteCommand(_ context.Context, token, deviceID, command string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return f.execErr
	}
	f.executed = append(f.executed, executedCommand{DeviceID: deviceID, Command: command, Params: params})
	return nil
}

type fakeTokens struct {
	mu           sync.Mutex
	refreshed    *session.Credential
	refreshErr   error
	refreshCalls int
}

func (f *fakeTokens) Valid(cred *session.Credential, now time.Time) bool {
	return cred != nil && cred.AccessToken != "" && now.Before(cred.ExpiresAt)
}

func (f *fakeTokens) Refresh(_ context.Context, cred *session.Credential) (*session.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---- raw device builders ----

func rawThermostat(id string, traits map[string]any) sdm.RawDevice {
	encoded := make(map[string]json.RawMessage, len(traits))
	for name, v := range traits {
		b, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("marshal trait %s: %v", name, err))
		}
		encoded[name] = b
	}
	return sdm.RawDevice{
		Name:   "enterprises/proj-1/devices/" + id,
		Type:   sdm.TypeThermostat,
		Traits: encoded,
	}
}

func heatingThermostat(id string, ambient, heatSetpoint float64) sdm.RawDevice {
	return rawThermostat(id, map[string]any{
		sdm.TraitInfo:     map[string]any{"customName": "Upstream " + id},
		sdm.TraitTemp:     map[string]any{"ambientTemperatureCelsius": ambient},
		sdm.TraitHumidity: map[string]any{"ambientHumidityPercent": 40.0},
		sdm.TraitMode:     map[string]any{"mode": "HEAT", "availableModes": []string{"HEAT", "COOL", "OFF"}},
		sdm.TraitEco:      map[string]any{"mode": "OFF"},
		sdm.TraitSetpoint: map[string]any{"heatCelsius": heatSetpoint},
	})
}

// ---- harness ----

type harness struct {
	svc      *DeviceService
	sessions *fakeSessions
	readings *fakeReadings
	upstream *fakeUpstream
	tokens   *fakeTokens
	hub      *Hub
	clock    *fakeClock
	sess     *session.Session
}

func newHarness(devices ...sdm.RawDevice) *harness {
	h := &harness{
		sessions: newFakeSessions(),
		readings: &fakeReadings{},
		upstream: &fakeUpstream{devices: devices},
		tokens:   &fakeTokens{},
		hub:      NewHub(),
		clock:    newFakeClock(),
	}
	h.sess = &session.Session{
		ID: "sess-1",
		Credential: &session.Credential{
			AccessToken:  "valid-token",
			RefreshToken: "rt",
			ExpiresAt:    h.clock.Now().Add(time.Hour),
		},
	}
	_ = h.sessions.Create(context.Background(), h.sess)
	h.svc = NewDeviceService(h.sessions, h.readings, h.upstream, h.tokens, h.hub, DefaultCacheTTL, h.clock.Now, nil)
	return h
}
