// Package model holds the request-scoped values shared by the feedback
// pipeline: intents, proposed actions, device snapshots and reconciliation
// results.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Intent string

const (
	IntentGetSetpoint        Intent = "GET_SETPOINT"
	IntentGetRoomTemperature Intent = "GET_ROOM_TEMPERATURE"
	IntentGetHumidity        Intent = "GET_HUMIDITY"
	IntentGetConsumption     Intent = "GET_CONSUMPTION"
	IntentGetRunHours        Intent = "GET_RUN_HOURS"
	IntentFeedback           Intent = "FEEDBACK"
	IntentOther              Intent = "OTHER"
)

// Intents lists every intent in a stable order.
var Intents = []Intent{
	IntentGetSetpoint,
	IntentGetRoomTemperature,
	IntentGetHumidity,
	IntentGetConsumption,
	IntentGetRunHours,
	IntentFeedback,
	IntentOther,
}

func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// ReadOnly reports whether the intent only reads device state.
func (i Intent) ReadOnly() bool {
	return strings.HasPrefix(string(i), "GET_") && i.Valid()
}

type Power string

const (
	PowerOn  Power = "ON"
	PowerOff Power = "OFF"
)

func (p Power) Valid() bool { return p == PowerOn || p == PowerOff }

// MarshalJSON encodes an unknown power state as null.
func (p Power) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

func (p *Power) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = Power(s)
	return nil
}

// Action is a proposed or validated change of desired state.
type Action struct {
	Power     Power    `json:"power,omitempty"`
	SetpointC *float64 `json:"setpointC,omitempty"`
	DeltaC    *float64 `json:"deltaC,omitempty"`
}

func (a Action) Empty() bool {
	return a.Power == "" && a.SetpointC == nil && a.DeltaC == nil
}

// TemperatureChange reports whether the action asks for a setpoint change.
func (a Action) TemperatureChange() bool {
	return a.SetpointC != nil || a.DeltaC != nil
}

// Snapshot is the normalized, point-in-time read of a device. Numeric fields
// are nil when unknown, never zero.
type Snapshot struct {
	SetpointC    *float64  `json:"setpointC"`
	Power        Power     `json:"power"`
	RoomTempC    *float64  `json:"roomTempC"`
	HumidityPct  *float64  `json:"humidityPct"`
	ConsumptionW *float64  `json:"consumptionW"`
	RunHours     *float64  `json:"runHours"`
	LastUpdateAt time.Time `json:"lastUpdateAt"`
}

type DesiredState struct {
	Power     Power    `json:"power"`
	SetpointC *float64 `json:"setpointC"`
}

type Changes struct {
	PowerChanged    bool `json:"powerChanged"`
	SetpointChanged bool `json:"setpointChanged"`
}

// Command is the firmware payload. Field names and string values are part of
// the device contract.
type Command struct {
	Power string `json:"Power"`
	Temp  string `json:"Temp"`
	Mode  string `json:"Mode"`
	Fan   string `json:"Fan"`
}

type Dispatch struct {
	Attempted bool     `json:"attempted"`
	Succeeded bool     `json:"succeeded"`
	Reason    string   `json:"reason,omitempty"`
	Address   string   `json:"address,omitempty"`
	Command   *Command `json:"command,omitempty"`
}

type Validation struct {
	Clamped bool `json:"clamped"`
}

// Result is the outcome of reconciling one validated action.
type Result struct {
	Current    Snapshot     `json:"current"`
	Next       DesiredState `json:"next"`
	Action     Action       `json:"action"`
	Changed    bool         `json:"changed"`
	Changes    Changes      `json:"changeReasons"`
	Dispatch   Dispatch     `json:"dispatch"`
	Validation Validation   `json:"validation"`
}

// Classification is the output of either classifier path.
type Classification struct {
	Intent         Intent  `json:"intent"`
	RequiresAction bool    `json:"requiresAction"`
	Action         *Action `json:"action"`
	// Clamped is set when the classifier had to bound its own action values.
	Clamped bool `json:"-"`
}

// Normalize enforces that only FEEDBACK carries an action.
func (c Classification) Normalize() Classification {
	if !c.Intent.Valid() {
		c.Intent = IntentOther
	}
	if c.Intent != IntentFeedback {
		c.RequiresAction = false
		c.Action = nil
		return c
	}
	if c.Action == nil || c.Action.Empty() {
		c.RequiresAction = false
		c.Action = nil
		return c
	}
	c.RequiresAction = true
	return c
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the rolling conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
