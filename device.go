package nest

import "time"

// Mode is a thermostat operating mode. UNKNOWN covers anything the upstream
// API reports that we do not model.
type Mode string

const (
	ModeHeat     Mode = "HEAT"
	ModeCool     Mode = "COOL"
	ModeHeatCool Mode = "HEATCOOL"
	ModeEco      Mode = "ECO"
	ModeOff      Mode = "OFF"
	ModeUnknown  Mode = "UNKNOWN"
)

// ParseMode maps an upstream mode string onto a Mode, falling back to UNKNOWN.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeHeat, ModeCool, ModeHeatCool, ModeEco, ModeOff:
		return Mode(s)
	default:
		return ModeUnknown
	}
}

// Device is the normalized projection of an upstream thermostat. Pointer
// fields are nil when the upstream trait is absent; they are never defaulted
// to zero values.
type Device struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	CurrentTempC   *float64  `json:"current_temp_c,omitempty"`
	TargetTempC    *float64  `json:"target_temp_c,omitempty"`
	HeatSetpointC  *float64  `json:"heat_setpoint_c,omitempty"`
	CoolSetpointC  *float64  `json:"cool_setpoint_c,omitempty"`
	HumidityPct    *float64  `json:"humidity_pct,omitempty"`
	Mode           Mode      `json:"mode"`
	AvailableModes []Mode    `json:"available_modes,omitempty"`
	EcoActive      bool      `json:"eco_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Reading is a single temperature/humidity sample recorded from a successful
// upstream fetch. Serves the temperature-history endpoint.
type Reading struct {
	DeviceID    string    `json:"device_id"`
	TempC       float64   `json:"temp_c"`
	HumidityPct *float64  `json:"humidity_pct,omitempty"`
	TakenAt     time.Time `json:"taken_at"`
}

// Setpoint hardware bounds in Celsius.
const (
	MinSetpointC = 9.0
	MaxSetpointC = 32.0
)
