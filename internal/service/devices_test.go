package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/sdm"
	"github.com/gleadbet/nest/internal/session"
)

func TestList_CollapsesCallsWithinTTL(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		devices, err := h.svc.List(ctx, h.sess, false)
		require.NoError(t, err)
		require.Len(t, devices, 1)
	}
	assert.Equal(t, 1, h.upstream.listCalls, "calls within the TTL must share one upstream fetch")

	h.clock.Advance(DefaultCacheTTL + time.Second)
	_, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.upstream.listCalls, "expired entry must refetch")
}

func TestList_ForceBypassesCache(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	ctx := context.Background()

	_, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	_, err = h.svc.List(ctx, h.sess, true)
	require.NoError(t, err)
	assert.Equal(t, 2, h.upstream.listCalls)
}

func TestList_NormalizesHeatingThermostat(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	devices, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	d := devices[0]
	assert.Equal(t, "dev-1", d.ID)
	assert.Equal(t, nest.ModeHeat, d.Mode)
	require.NotNil(t, d.CurrentTempC)
	assert.Equal(t, 19.5, *d.CurrentTempC)
	require.NotNil(t, d.TargetTempC)
	assert.Equal(t, 21.0, *d.TargetTempC)
	require.NotNil(t, d.HeatSetpointC)
	assert.Nil(t, d.CoolSetpointC, "cool setpoint absent upstream must stay absent")
	assert.Equal(t, []nest.Mode{nest.ModeHeat, nest.ModeCool, nest.ModeOff}, d.AvailableModes)
	assert.False(t, d.EcoActive)
}

func TestList_AbsentTraitsStayNil(t *testing.T) {
	h := newHarness(rawThermostat("bare", map[string]any{
		sdm.TraitMode: map[string]any{"mode": "OFF", "availableModes": []string{"HEAT", "OFF"}},
	}))

	devices, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	d := devices[0]
	assert.Nil(t, d.CurrentTempC)
	assert.Nil(t, d.TargetTempC)
	assert.Nil(t, d.HumidityPct)
	assert.Equal(t, nest.ModeOff, d.Mode)
	assert.Equal(t, "bare", d.DisplayName, "missing custom name falls back to id")
}

func TestList_FiltersNonThermostats(t *testing.T) {
	camera := sdm.RawDevice{Name: "enterprises/proj-1/devices/cam-1", Type: "sdm.devices.types.CAMERA"}
	h := newHarness(camera, heatingThermostat("dev-1", 19.5, 21.0))

	devices, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].ID)
}

func TestList_EcoOverridesMode(t *testing.T) {
	h := newHarness(rawThermostat("eco-1", map[string]any{
		sdm.TraitMode: map[string]any{"mode": "HEAT", "availableModes": []string{"HEAT", "OFF"}},
		sdm.TraitEco:  map[string]any{"mode": "MANUAL_ECO"},
	}))

	devices, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, nest.ModeEco, devices[0].Mode)
	assert.True(t, devices[0].EcoActive)
}

func TestList_OverlaysSessionNames(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	h.sess.SetName("dev-1", "Hallway")

	devices, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, "Hallway", devices[0].DisplayName)

	// A different session sees the upstream name.
	other := &session.Session{ID: "sess-2", Credential: h.sess.Credential}
	_ = h.sessions.Create(context.Background(), other)
	devices, err = h.svc.List(context.Background(), other, false)
	require.NoError(t, err)
	assert.Equal(t, "Upstream dev-1", devices[0].DisplayName)
}

func TestList_NoCredential(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	_, err := h.svc.List(context.Background(), &session.Session{ID: "anon"}, false)
	require.Error(t, err)
	assert.Equal(t, nest.KindAuthRequired, nest.KindOf(err))
	assert.Zero(t, h.upstream.listCalls)
}

func TestAccessToken_ValidTokenSkipsRefresh(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	_, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	assert.Zero(t, h.tokens.refreshCalls, "unexpired credentials must not hit the token endpoint")
	assert.Equal(t, []string{"valid-token"}, h.upstream.tokens)
}

func TestAccessToken_ExpiredTokenRefreshesOnceAndPersists(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	h.sess.Credential.ExpiresAt = h.clock.Now().Add(-time.Minute)
	h.tokens.refreshed = &session.Credential{
		AccessToken:  "fresh-token",
		RefreshToken: "rt",
		ExpiresAt:    h.clock.Now().Add(time.Hour),
	}

	_, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.tokens.refreshCalls)
	assert.Equal(t, []string{"fresh-token"}, h.upstream.tokens)

	stored, err := h.sessions.Get(context.Background(), h.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.Credential.AccessToken, "refreshed credential must be persisted before use")
}

func TestAccessToken_RefreshFailureMarksSession(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	h.sess.Credential.ExpiresAt = h.clock.Now().Add(-time.Minute)
	h.tokens.refreshErr = assert.AnError

	_, err := h.svc.List(context.Background(), h.sess, false)
	require.Error(t, err)
	assert.Equal(t, nest.KindAuthExpired, nest.KindOf(err))
	assert.Zero(t, h.upstream.listCalls)

	stored, _ := h.sessions.Get(context.Background(), h.sess.ID)
	assert.Equal(t, session.RefreshErrorValue, stored.AuthError)
}

func TestGet_UnknownDevice(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	_, err := h.svc.Get(context.Background(), h.sess, "nope")
	require.Error(t, err)
	assert.Equal(t, nest.KindNotFound, nest.KindOf(err))
}

func TestSetTemperature_RangeValidationShortCircuits(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	for _, v := range []float64{8.9, 32.1, -5, 100} {
		_, err := h.svc.SetTemperature(context.Background(), h.sess, "dev-1", nest.ModeHeat, v)
		require.Error(t, err, "value %v", v)
		assert.Equal(t, nest.KindValidation, nest.KindOf(err))
	}
	assert.Zero(t, h.upstream.getCalls, "validation failures must not reach upstream")
	assert.Empty(t, h.upstream.executed)
}

func TestSetTemperature_BoundaryValuesAccepted(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	for _, v := range []float64{9.0, 32.0} {
		_, err := h.svc.SetTemperature(context.Background(), h.sess, "dev-1", nest.ModeHeat, v)
		require.NoError(t, err, "value %v", v)
	}
	require.Len(t, h.upstream.executed, 2)
	assert.Equal(t, sdm.CmdSetHeat, h.upstream.executed[0].Command)
	assert.Equal(t, map[string]any{"heatCelsius": 9.0}, h.upstream.executed[0].Params)
}

func TestSetTemperature_EcoModeRefused(t *testing.T) {
	h := newHarness(rawThermostat("eco-1", map[string]any{
		sdm.TraitMode: map[string]any{"mode": "HEAT", "availableModes": []string{"HEAT", "OFF"}},
		sdm.TraitEco:  map[string]any{"mode": "MANUAL_ECO"},
	}))

	_, err := h.svc.SetTemperature(context.Background(), h.sess, "eco-1", nest.ModeHeat, 21.0)
	require.Error(t, err)
	assert.Equal(t, nest.KindInvalidMode, nest.KindOf(err))
	assert.Empty(t, h.upstream.executed, "no setpoint write may be issued in eco")
}

func TestSetTemperature_KindMustMatchCurrentMode(t *testing.T) {
	h := newHarness(rawThermostat("cool-1", map[string]any{
		sdm.TraitMode:     map[string]any{"mode": "COOL", "availableModes": []string{"HEAT", "COOL", "OFF"}},
		sdm.TraitSetpoint: map[string]any{"coolCelsius": 24.0},
	}))

	// Requesting a heat setpoint while the device cools is rejected, not
	// silently re-routed to SetCool.
	_, err := h.svc.SetTemperature(context.Background(), h.sess, "cool-1", nest.ModeHeat, 25.0)
	require.Error(t, err)
	assert.Equal(t, nest.KindInvalidMode, nest.KindOf(err))
	assert.Empty(t, h.upstream.executed)

	// Matching kind goes through as SetCool.
	_, err = h.svc.SetTemperature(context.Background(), h.sess, "cool-1", nest.ModeCool, 25.0)
	require.NoError(t, err)
	require.Len(t, h.upstream.executed, 1)
	assert.Equal(t, sdm.CmdSetCool, h.upstream.executed[0].Command)
	assert.Equal(t, map[string]any{"coolCelsius": 25.0}, h.upstream.executed[0].Params)
}

func TestWriteInvalidatesCache(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	ctx := context.Background()

	_, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.upstream.listCalls)

	// SetTemperature force-refreshes after the command.
	_, err = h.svc.SetTemperature(ctx, h.sess, "dev-1", nest.ModeHeat, 22.0)
	require.NoError(t, err)
	assert.Equal(t, 2, h.upstream.listCalls)

	// And the next plain read bypasses whatever TTL remains from before the
	// write only if the entry was invalidated; the post-write refresh
	// repopulated it, so this read is served from cache.
	_, err = h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.upstream.listCalls)
}

func TestRenameInvalidatesCacheAndPersists(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	ctx := context.Background()

	_, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.upstream.listCalls)

	require.NoError(t, h.svc.Rename(ctx, h.sess, "dev-1", "Hallway"))

	// Rename issues no upstream call itself but forces the next read through.
	devices, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.upstream.listCalls)
	assert.Equal(t, "Hallway", devices[0].DisplayName)

	stored, _ := h.sessions.Get(ctx, h.sess.ID)
	assert.Equal(t, "Hallway", stored.Name("dev-1"))
}

func TestRename_Validation(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	err := h.svc.Rename(context.Background(), h.sess, "dev-1", "   ")
	require.Error(t, err)
	assert.Equal(t, nest.KindValidation, nest.KindOf(err))

	long := make([]byte, maxDeviceNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	err = h.svc.Rename(context.Background(), h.sess, "dev-1", string(long))
	require.Error(t, err)
	assert.Equal(t, nest.KindValidation, nest.KindOf(err))
}

func TestSetMode_UnsupportedModeRejected(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0)) // advertises HEAT, COOL, OFF

	_, err := h.svc.SetMode(context.Background(), h.sess, "dev-1", nest.ModeHeatCool)
	require.Error(t, err)
	assert.Equal(t, nest.KindValidation, nest.KindOf(err))
	assert.Empty(t, h.upstream.executed)
}

func TestSetMode_WritesAndRefreshes(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	devices, err := h.svc.SetMode(context.Background(), h.sess, "dev-1", nest.ModeOff)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, h.upstream.executed, 1)
	assert.Equal(t, sdm.CmdSetMode, h.upstream.executed[0].Command)
	assert.Equal(t, map[string]any{"mode": "OFF"}, h.upstream.executed[0].Params)
	assert.Equal(t, 1, h.upstream.listCalls, "post-write refresh")
}

func TestSetMode_EcoUsesEcoCommand(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	_, err := h.svc.SetMode(context.Background(), h.sess, "dev-1", nest.ModeEco)
	require.NoError(t, err)
	require.Len(t, h.upstream.executed, 1)
	assert.Equal(t, sdm.CmdSetEco, h.upstream.executed[0].Command)
	assert.Equal(t, map[string]any{"mode": "MANUAL_ECO"}, h.upstream.executed[0].Params)
}

func TestSetTemperature_UpstreamFailureIsClassifiedNotApplied(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	h.upstream.execErr = nest.E(nest.KindRateLimited, "quota exceeded")

	_, err := h.svc.SetTemperature(context.Background(), h.sess, "dev-1", nest.ModeHeat, 22.0)
	require.Error(t, err)
	assert.Equal(t, nest.KindRateLimited, nest.KindOf(err))
	assert.Zero(t, h.upstream.listCalls, "no refresh after a failed write")
}

func TestFetchRecordsReadingsAndPublishes(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))

	updates, cancel := h.hub.Subscribe("dev-1")
	defer cancel()

	_, err := h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)

	require.Len(t, h.readings.appended, 1)
	r := h.readings.appended[0]
	assert.Equal(t, "dev-1", r.DeviceID)
	assert.Equal(t, 19.5, r.TempC)
	assert.Equal(t, h.clock.Now(), r.TakenAt)

	select {
	case d := <-updates:
		assert.Equal(t, "dev-1", d.ID)
	default:
		t.Fatal("expected a published update after the fetch")
	}

	// Cache hits must not duplicate history rows.
	_, err = h.svc.List(context.Background(), h.sess, false)
	require.NoError(t, err)
	assert.Len(t, h.readings.appended, 1)
}

func TestHistory_ReturnsRecordedRange(t *testing.T) {
	h := newHarness(heatingThermostat("dev-1", 19.5, 21.0))
	ctx := context.Background()

	_, err := h.svc.List(ctx, h.sess, false)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.svc.List(ctx, h.sess, true)
	require.NoError(t, err)

	all, err := h.svc.History(ctx, h.sess, "dev-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	justFirst, err := h.svc.History(ctx, h.sess, "dev-1", time.Time{}, all[0].TakenAt)
	require.NoError(t, err)
	assert.Len(t, justFirst, 1)
}
