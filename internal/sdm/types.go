// Package sdm talks to the Smart Device Management API. It deals only in the
// upstream wire shapes; normalization into the dashboard model happens in the
// service layer.
package sdm

import (
	"encoding/json"
	"strings"
)

// Device type of interest; everything else (cameras, doorbells) is filtered
// out by the gateway.
const TypeThermostat = "sdm.devices.types.THERMOSTAT"

// Trait names on thermostat devices.
const (
	TraitInfo     = "sdm.devices.traits.Info"
	TraitTemp     = "sdm.devices.traits.Temperature"
	TraitHumidity = "sdm.devices.traits.Humidity"
	TraitMode     = "sdm.devices.traits.ThermostatMode"
	TraitEco      = "sdm.devices.traits.ThermostatEco"
	TraitSetpoint = "sdm.devices.traits.ThermostatTemperatureSetpoint"
)

// Commands accepted by :executeCommand.
const (
	CmdSetHeat = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
	CmdSetCool = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetCool"
	CmdSetMode = "sdm.devices.commands.ThermostatMode.SetMode"
	CmdSetEco  = "sdm.devices.commands.ThermostatEco.SetMode"
)

// EcoManual is the ThermostatEco mode value for an active eco hold.
const EcoManual = "MANUAL_ECO"

// RawDevice is an upstream device object as returned by the list/get calls.
// Traits stay raw; callers decode only the traits they understand.
type RawDevice struct {
	Name   string                     `json:"name"` // enterprises/{project}/devices/{id}
	Type   string                     `json:"type"`
	Traits map[string]json.RawMessage `json:"traits"`
}

// ID extracts the opaque device identifier from the resource name.
func (d RawDevice) ID() string {
	if i := strings.LastIndexByte(d.Name, '/'); i >= 0 {
		return d.Name[i+1:]
	}
	return d.Name
}

// Trait decodes one named trait into out. Returns false when the trait is
// absent or does not decode.
func (d RawDevice) Trait(name string, out any) bool {
	raw, ok := d.Traits[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Decoded trait payloads.

type InfoTrait struct {
	CustomName string `json:"customName"`
}

type TemperatureTrait struct {
	AmbientTemperatureCelsius float64 `json:"ambientTemperatureCelsius"`
}

type HumidityTrait struct {
	AmbientHumidityPercent float64 `json:"ambientHumidityPercent"`
}

type ModeTrait struct {
	Mode           string   `json:"mode"`
	AvailableModes []string `json:"availableModes"`
}

type EcoTrait struct {
	Mode string `json:"mode"`
}

type SetpointTrait struct {
	HeatCelsius *float64 `json:"heatCelsius,omitempty"`
	CoolCelsius *float64 `json:"coolCelsius,omitempty"`
}
