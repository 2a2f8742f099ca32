// Package telemetry normalizes stored device and port records into a
// snapshot of the unit's reported state.
package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kishlaychandan/feedback-backend/internal/model"
	"github.com/kishlaychandan/feedback-backend/internal/store"
)

// Read maps a device and its primary port to a snapshot. It never fails:
// absent or non-finite values become nil, and LastUpdateAt falls back from
// the last ping to the record's update time to now.
func Read(dev *store.Device, port *store.Port, now time.Time) model.Snapshot {
	var snap model.Snapshot

	if port != nil {
		snap.SetpointC = finite(port.ACTemp)
		if port.Val != nil {
			if *port.Val == 1 {
				snap.Power = model.PowerOn
			} else {
				snap.Power = model.PowerOff
			}
		}
		snap.RoomTempC = parseNumber(port.RoomTemp)
	}

	if dev != nil {
		snap.HumidityPct = finite(dev.HumidityPct)
		snap.ConsumptionW = finite(dev.ConsumptionW)
		snap.RunHours = finite(dev.RunHours)
	}

	switch {
	case dev != nil && dev.LastPing != nil && !dev.LastPing.IsZero():
		snap.LastUpdateAt = *dev.LastPing
	case dev != nil && !dev.UpdatedAt.IsZero():
		snap.LastUpdateAt = dev.UpdatedAt
	default:
		snap.LastUpdateAt = now
	}
	return snap
}

// Project returns the slice of the snapshot a read-only intent asks about,
// or nil for intents that do not read.
func Project(intent model.Intent, snap model.Snapshot) map[string]any {
	if !intent.ReadOnly() {
		return nil
	}
	out := map[string]any{"lastUpdateAt": snap.LastUpdateAt}
	switch intent {
	case model.IntentGetSetpoint:
		out["power"] = snap.Power
		out["setpointC"] = snap.SetpointC
	case model.IntentGetRoomTemperature:
		out["roomTempC"] = snap.RoomTempC
	case model.IntentGetHumidity:
		out["humidityPct"] = snap.HumidityPct
	case model.IntentGetConsumption:
		out["consumptionW"] = snap.ConsumptionW
	case model.IntentGetRunHours:
		out["runHours"] = snap.RunHours
	default:
		return nil
	}
	return out
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finite(&v)
}
