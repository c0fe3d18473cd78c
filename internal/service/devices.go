package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/repository"
	"github.com/gleadbet/nest/internal/sdm"
	"github.com/gleadbet/nest/internal/session"
)

const maxDeviceNameLen = 64

// DeviceService orchestrates reads and writes against the upstream device
// API: token resolution, the shared list cache, normalization, error
// classification and the per-session display-name overlay.
type DeviceService struct {
	sessions repository.Sessions
	readings repository.Readings
	upstream UpstreamClient
	tokens   TokenSource
	hub      Realtime
	cache    *deviceCache
	clock    func() time.Time
	log      *logger.Logger
}

func NewDeviceService(
	sessions repository.Sessions,
	readings repository.Readings,
	upstream UpstreamClient,
	tokens TokenSource,
	hub Realtime,
	cacheTTL time.Duration,
	clock func() time.Time,
	log *logger.Logger,
) *DeviceService {
	if clock == nil {
		clock = time.Now
	}
	return &DeviceService{
		sessions: sessions,
		readings: readings,
		upstream: upstream,
		tokens:   tokens,
		hub:      hub,
		cache:    newDeviceCache(cacheTTL, clock),
		clock:    clock,
		log:      log,
	}
}

// List returns the normalized thermostat list in upstream order, names
// overlaid from the session.
func (s *DeviceService) List(ctx context.Context, sess *session.Session, force bool) ([]nest.Device, error) {
	raw, err := s.rawDevices(ctx, sess, force)
	if err != nil {
		return nil, err
	}
	return overlayNames(normalizeAll(raw, s.clock()), sess), nil
}

// Get returns one device from the (possibly cached) list.
func (s *DeviceService) Get(ctx context.Context, sess *session.Session, deviceID string) (nest.Device, error) {
	devices, err := s.List(ctx, sess, false)
	if err != nil {
		return nest.Device{}, err
	}
	dev, ok := lo.Find(devices, func(d nest.Device) bool { return d.ID == deviceID })
	if !ok {
		return nest.Device{}, nest.E(nest.KindNotFound, "device %s not found", deviceID)
	}
	return dev, nil
}

// History reads recorded temperature samples for a device.
func (s *DeviceService) History(ctx context.Context, sess *session.Session, deviceID string, from, to time.Time) ([]nest.Reading, error) {
	if sess == nil || sess.Credential == nil {
		return nil, nest.E(nest.KindAuthRequired, "not signed in")
	}
	out, err := s.readings.ListRange(ctx, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", deviceID, err)
	}
	return out, nil
}

// SetTemperature writes a heat or cool setpoint. The command variant is
// keyed by the device's current mode; a request whose kind disagrees with
// the current mode is rejected rather than silently re-routed.
func (s *DeviceService) SetTemperature(ctx context.Context, sess *session.Session, deviceID string, kind nest.Mode, valueC float64) ([]nest.Device, error) {
	if kind != nest.ModeHeat && kind != nest.ModeCool {
		return nil, nest.E(nest.KindValidation, "setpoint kind must be HEAT or COOL, got %q", kind)
	}
	if valueC < nest.MinSetpointC || valueC > nest.MaxSetpointC {
		return nil, nest.E(nest.KindValidation, "setpoint %.1f°C outside hardware range [%.0f, %.0f]", valueC, nest.MinSetpointC, nest.MaxSetpointC)
	}

	token, err := s.accessToken(ctx, sess)
	if err != nil {
		return nil, err
	}
	raw, err := s.upstream.GetDevice(ctx, token, deviceID)
	if err != nil {
		return nil, err
	}
	current := normalize(raw, s.clock())
	if current.EcoActive || current.Mode == nest.ModeEco {
		return nil, nest.E(nest.KindInvalidMode, "setpoints cannot be changed while eco is active")
	}
	if current.Mode != kind {
		return nil, nest.E(nest.KindInvalidMode, "requested %s setpoint but device mode is %s", kind, current.Mode)
	}

	command, params := sdm.CmdSetHeat, map[string]any{"heatCelsius": valueC}
	if kind == nest.ModeCool {
		command, params = sdm.CmdSetCool, map[string]any{"coolCelsius": valueC}
	}
	if err := s.upstream.ExecuteCommand(ctx, token, deviceID, command, params); err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.Infow("setpoint_written", "device", deviceID, "kind", kind, "value_c", valueC)
	}

	s.cache.invalidate()
	return s.List(ctx, sess, true)
}

// SetMode switches the thermostat mode. ECO goes through the eco trait
// command; every other mode must be advertised by the device.
func (s *DeviceService) SetMode(ctx context.Context, sess *session.Session, deviceID string, mode nest.Mode) ([]nest.Device, error) {
	if mode == nest.ModeUnknown || mode == "" {
		return nil, nest.E(nest.KindValidation, "unrecognized mode")
	}

	token, err := s.accessToken(ctx, sess)
	if err != nil {
		return nil, err
	}
	raw, err := s.upstream.GetDevice(ctx, token, deviceID)
	if err != nil {
		return nil, err
	}
	current := normalize(raw, s.clock())

	if mode == nest.ModeEco {
		err = s.upstream.ExecuteCommand(ctx, token, deviceID, sdm.CmdSetEco, map[string]any{"mode": sdm.EcoManual})
	} else {
		if !lo.Contains(current.AvailableModes, mode) {
			return nil, nest.E(nest.KindValidation, "mode %s not supported by device %s", mode, deviceID)
		}
		err = s.upstream.ExecuteCommand(ctx, token, deviceID, sdm.CmdSetMode, map[string]any{"mode": string(mode)})
	}
	if err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.Infow("mode_written", "device", deviceID, "mode", mode)
	}

	s.cache.invalidate()
	return s.List(ctx, sess, true)
}

// Rename stores a session-scoped display-name override. The raw device list
// is untouched upstream, but the next read still bypasses the cache so the
// overlay is applied to fresh data.
func (s *DeviceService) Rename(ctx context.Context, sess *session.Session, deviceID, name string) error {
	if sess == nil || sess.Credential == nil {
		return nest.E(nest.KindAuthRequired, "not signed in")
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxDeviceNameLen {
		return nest.E(nest.KindValidation, "name must be 1..%d characters", maxDeviceNameLen)
	}
	sess.SetName(deviceID, name)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("persist device name: %w", err)
	}
	s.cache.invalidate()
	return nil
}

// accessToken resolves a usable bearer token for the session, refreshing
// when expired. A refreshed credential is persisted before first use so a
// concurrent caller never reuses the stale token from the store.
func (s *DeviceService) accessToken(ctx context.Context, sess *session.Session) (string, error) {
	if sess == nil || sess.Credential == nil {
		return "", nest.E(nest.KindAuthRequired, "not signed in")
	}
	if s.tokens.Valid(sess.Credential, s.clock()) {
		return sess.Credential.AccessToken, nil
	}

	cred, err := s.tokens.Refresh(ctx, sess.Credential)
	if err != nil {
		sess.AuthError = session.RefreshErrorValue
		if uerr := s.sessions.Update(ctx, sess); uerr != nil && s.log != nil {
			s.log.Errorw("session_auth_error_persist_failed", "session", sess.ID, "err", uerr)
		}
		return "", nest.E(nest.KindAuthExpired, "access token refresh failed")
	}

	sess.Credential = cred
	sess.AuthError = ""
	if err := s.sessions.Update(ctx, sess); err != nil {
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}
	return cred.AccessToken, nil
}

// rawDevices is the cached read path.
func (s *DeviceService) rawDevices(ctx context.Context, sess *session.Session, force bool) ([]sdm.RawDevice, error) {
	token, err := s.accessToken(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.cache.get(ctx, force, func(fctx context.Context) ([]sdm.RawDevice, error) {
		devices, err := s.upstream.ListDevices(fctx, token)
		if err != nil {
			return nil, err
		}
		s.record(fctx, devices)
		return devices, nil
	})
}

// record runs on every genuine upstream fetch: append history samples and
// push updates to websocket subscribers. Both are best-effort.
func (s *DeviceService) record(ctx context.Context, raw []sdm.RawDevice) {
	now := s.clock()
	for _, dev := range normalizeAll(raw, now) {
		if dev.CurrentTempC != nil {
			reading := nest.Reading{
				DeviceID:    dev.ID,
				TempC:       *dev.CurrentTempC,
				HumidityPct: dev.HumidityPct,
				TakenAt:     now,
			}
			if err := s.readings.Append(ctx, reading); err != nil && s.log != nil {
				s.log.Errorw("reading_append_failed", "device", dev.ID, "err", err)
			}
		}
		s.hub.Publish(dev)
	}
}

// normalizeAll filters to thermostats and normalizes, preserving upstream
// order.
func normalizeAll(raw []sdm.RawDevice, now time.Time) []nest.Device {
	thermostats := lo.Filter(raw, func(d sdm.RawDevice, _ int) bool {
		return d.Type == sdm.TypeThermostat
	})
	return lo.Map(thermostats, func(d sdm.RawDevice, _ int) nest.Device {
		return normalize(d, now)
	})
}

// normalize projects one raw device onto the dashboard model. Absent traits
// leave the corresponding fields nil; nothing throws on partial data.
func normalize(d sdm.RawDevice, now time.Time) nest.Device {
	out := nest.Device{ID: d.ID(), Mode: nest.ModeUnknown, UpdatedAt: now}

	var info sdm.InfoTrait
	if d.Trait(sdm.TraitInfo, &info) && info.CustomName != "" {
		out.DisplayName = info.CustomName
	} else {
		out.DisplayName = out.ID
	}

	var temp sdm.TemperatureTrait
	if d.Trait(sdm.TraitTemp, &temp) {
		v := temp.AmbientTemperatureCelsius
		out.CurrentTempC = &v
	}

	var humidity sdm.HumidityTrait
	if d.Trait(sdm.TraitHumidity, &humidity) {
		v := humidity.AmbientHumidityPercent
		out.HumidityPct = &v
	}

	var mode sdm.ModeTrait
	if d.Trait(sdm.TraitMode, &mode) {
		out.Mode = nest.ParseMode(mode.Mode)
		out.AvailableModes = lo.Map(mode.AvailableModes, func(m string, _ int) nest.Mode {
			return nest.ParseMode(m)
		})
	}

	var eco sdm.EcoTrait
	if d.Trait(sdm.TraitEco, &eco) && eco.Mode == sdm.EcoManual {
		out.EcoActive = true
		out.Mode = nest.ModeEco
	}

	var setpoint sdm.SetpointTrait
	if d.Trait(sdm.TraitSetpoint, &setpoint) {
		out.HeatSetpointC = setpoint.HeatCelsius
		out.CoolSetpointC = setpoint.CoolCelsius
	}

	switch out.Mode {
	case nest.ModeHeat:
		out.TargetTempC = out.HeatSetpointC
	case nest.ModeCool:
		out.TargetTempC = out.CoolSetpointC
	}
	return out
}

// overlayNames applies the session's display-name overrides.
func overlayNames(devices []nest.Device, sess *session.Session) []nest.Device {
	return lo.Map(devices, func(d nest.Device, _ int) nest.Device {
		if name := sess.Name(d.ID); name != "" {
			d.DisplayName = name
		}
		return d
	})
}
