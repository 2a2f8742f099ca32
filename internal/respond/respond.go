// Package respond produces the user-facing reply, either from the generative
// backend or from templates. A request that is already degraded never
// reaches the generative path.
package respond

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kishlaychandan/feedback-backend/internal/fallback"
	"github.com/kishlaychandan/feedback-backend/internal/model"
)

// Replier generates prose from a fact sheet.
type Replier interface {
	Reply(ctx context.Context, prompt string, cited ...float64) (string, error)
}

// Facts is everything a reply may state.
type Facts struct {
	Message  string
	ZoneID   string
	Intent   model.Intent
	Snapshot model.Snapshot
	Result   *model.Result
	Clamped  bool
}

// Reply is the synthesized text and how it was produced. Err is set when the
// generative call failed and the template was used instead.
type Reply struct {
	Text       string
	Generative bool
	Err        error
}

type Synthesizer struct {
	replier Replier
}

// New builds a synthesizer; a nil replier always uses templates.
func New(r Replier) *Synthesizer {
	return &Synthesizer{replier: r}
}

// Synthesize answers from facts. degraded is the request's single fallback
// flag: when set, only templates are used.
func (s *Synthesizer) Synthesize(ctx context.Context, f Facts, degraded bool) Reply {
	if degraded || s.replier == nil {
		return Reply{Text: s.template(f, degraded)}
	}
	text, err := s.replier.Reply(ctx, Prompt(f), cited(f)...)
	if err != nil {
		return Reply{Text: s.template(f, true), Err: err}
	}
	return Reply{Text: text, Generative: true}
}

func (s *Synthesizer) template(f Facts, degraded bool) string {
	return fallback.Reply(fallback.ReplyInput{
		Message:  f.Message,
		Intent:   f.Intent,
		Snapshot: f.Snapshot,
		Result:   f.Result,
		Clamped:  f.Clamped,
		Degraded: degraded,
	})
}

// Prompt renders the fact sheet handed to the generative backend.
func Prompt(f Facts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message: %s\n", f.Message)
	if f.ZoneID != "" {
		fmt.Fprintf(&b, "Zone: %s\n", f.ZoneID)
	}
	fmt.Fprintf(&b, "Intent: %s\n", f.Intent)

	s := f.Snapshot
	fmt.Fprintf(&b, "Device state (as of %s): power=%s, setpoint=%s, room temperature=%s, humidity=%s, consumption=%s, run hours=%s\n",
		s.LastUpdateAt.UTC().Format("2006-01-02 15:04 MST"),
		powerText(s.Power),
		withUnit(s.SetpointC, "°C"),
		withUnit(s.RoomTempC, "°C"),
		withUnit(s.HumidityPct, "%"),
		withUnit(s.ConsumptionW, "W"),
		withUnit(s.RunHours, "h"),
	)

	if r := f.Result; r != nil {
		fmt.Fprintf(&b, "Requested change: %s\n", actionText(r.Action))
		fmt.Fprintf(&b, "Target state: power=%s, setpoint=%s\n", powerText(r.Next.Power), withUnit(r.Next.SetpointC, "°C"))
		switch {
		case !r.Changed:
			b.WriteString("Outcome: the device already matches the target state, nothing was sent.\n")
		case !r.Dispatch.Attempted:
			b.WriteString("Outcome: a change is needed but the zone has no control address, nothing was sent.\n")
		case !r.Dispatch.Succeeded:
			b.WriteString("Outcome: the command could not be delivered to the controller. Do not say the change was applied.\n")
		default:
			b.WriteString("Outcome: the command was sent to the controller.\n")
		}
	}
	if f.Clamped {
		b.WriteString("Note: requested values were limited to the safe range of 16-30°C.\n")
	}
	if f.Intent == model.IntentOther {
		b.WriteString("No device action was taken. Acknowledge the message and suggest what you can help with.\n")
	}
	return b.String()
}

func cited(f Facts) []float64 {
	var out []float64
	if f.Snapshot.SetpointC != nil {
		out = append(out, *f.Snapshot.SetpointC)
	}
	if f.Result != nil && f.Result.Next.SetpointC != nil {
		out = append(out, *f.Result.Next.SetpointC)
	}
	return out
}

func actionText(a model.Action) string {
	var parts []string
	if a.Power != "" {
		parts = append(parts, "power "+string(a.Power))
	}
	if a.SetpointC != nil {
		parts = append(parts, "setpoint "+num(*a.SetpointC)+"°C")
	}
	if a.DeltaC != nil {
		parts = append(parts, fmt.Sprintf("adjust by %+g°C", *a.DeltaC))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func powerText(p model.Power) string {
	if p == "" {
		return "unknown"
	}
	return string(p)
}

func withUnit(v *float64, unit string) string {
	if v == nil {
		return "unknown"
	}
	return num(*v) + unit
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
