package fallback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const degradedNote = "Note: the language service is limited right now, so I'm using fallback mode.\n"

// ReplyInput carries the facts a templated reply may cite.
type ReplyInput struct {
	Message  string
	Intent   model.Intent
	Snapshot model.Snapshot
	Result   *model.Result
	Clamped  bool
	// Degraded adds a short note that the generative backend was bypassed.
	Degraded bool
}

// Reply renders a templated answer keyed by intent for reads and by the
// reconciliation outcome for actions.
func Reply(in ReplyInput) string {
	var prefix string
	if in.Degraded {
		prefix = degradedNote
	}
	return prefix + body(in)
}

func body(in ReplyInput) string {
	s := in.Snapshot
	switch in.Intent {
	case model.IntentGetSetpoint:
		switch {
		case s.SetpointC == nil && s.Power == "":
			return "I couldn't read the setpoint right now."
		case s.SetpointC == nil:
			return fmt.Sprintf("The AC is %s, but I couldn't read its setpoint.", lower(s.Power))
		case s.Power == "":
			return fmt.Sprintf("The current setpoint is %s°C.", num(*s.SetpointC))
		}
		return fmt.Sprintf("The current setpoint is %s°C and power is %s.", num(*s.SetpointC), lower(s.Power))
	case model.IntentGetRoomTemperature:
		if s.RoomTempC == nil {
			return "I couldn't read the room temperature right now."
		}
		return fmt.Sprintf("The current room temperature is %s°C.", num(*s.RoomTempC))
	case model.IntentGetHumidity:
		if s.HumidityPct == nil {
			return "I couldn't read humidity right now."
		}
		return fmt.Sprintf("Current humidity is %s%%.", num(*s.HumidityPct))
	case model.IntentGetConsumption:
		if s.ConsumptionW == nil {
			return "I couldn't read power consumption right now."
		}
		return fmt.Sprintf("Current consumption is %sW.", num(*s.ConsumptionW))
	case model.IntentGetRunHours:
		if s.RunHours == nil {
			return "I couldn't read run hours right now."
		}
		return fmt.Sprintf("Total run hours is %s.", num(*s.RunHours))
	}

	if in.Result != nil {
		return actionReply(in.Result, in.Clamped)
	}

	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return "I can report the setpoint, room temperature, humidity, consumption or run hours, or adjust the AC for you."
	}
	return fmt.Sprintf("Thanks, I've noted your feedback: %q. You can tell me if it feels too hot or too cold, or ask for a specific temperature.", msg)
}

func actionReply(r *model.Result, clamped bool) string {
	next := r.Next
	var out string
	switch {
	case !r.Changed:
		switch {
		case next.SetpointC != nil && next.Power != "":
			out = fmt.Sprintf("Already set: %s at %s°C.", lower(next.Power), num(*next.SetpointC))
		case next.SetpointC != nil:
			out = fmt.Sprintf("Already set to %s°C.", num(*next.SetpointC))
		case next.Power != "":
			out = fmt.Sprintf("Already %s.", lower(next.Power))
		default:
			out = "No change needed."
		}
	case !r.Dispatch.Attempted:
		out = "I worked out the change, but this zone has no control address, so no command was sent."
	case !r.Dispatch.Succeeded:
		out = "I decided the change, but sending the command failed. Please check the controller connection."
	case next.Power == model.PowerOff:
		out = "Done. Turned off."
	case next.SetpointC != nil && next.Power != "":
		out = fmt.Sprintf("Done. %s and set to %s°C.", capitalize(lower(next.Power)), num(*next.SetpointC))
	case next.SetpointC != nil:
		out = fmt.Sprintf("Done. Set to %s°C.", num(*next.SetpointC))
	case next.Power != "":
		out = fmt.Sprintf("Done. Turned %s.", lower(next.Power))
	default:
		out = "Done."
	}
	if clamped {
		out += " I kept the value within the safe range of 16-30°C."
	}
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lower(p model.Power) string {
	return strings.ToLower(string(p))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
