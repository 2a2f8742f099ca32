// Package reconcile turns a validated action and the current snapshot into
// the next desired state and dispatches a command only when that state
// differs materially from what the device reports.
package reconcile

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/kishlaychandan/feedback-backend/internal/action"
	"github.com/kishlaychandan/feedback-backend/internal/model"
)

// SetpointTolerance is the smallest setpoint difference treated as a change.
const SetpointTolerance = 0.1

const (
	DefaultMode = "0"
	DefaultFan  = "1"

	ReasonNoAddress = "NO_CONTROL_ADDRESS"
)

var ErrUnknownState = errors.New("cannot apply a relative change to an unknown setpoint")

// Outcome is what the transport reports for one publish.
type Outcome struct {
	Published bool
	Reason    string
}

// Dispatcher delivers a command to a control address.
type Dispatcher interface {
	Dispatch(ctx context.Context, address string, cmd model.Command) Outcome
}

// Target identifies where and with which non-reconciled settings a command
// is sent. Empty Mode and Fan fall back to the defaults.
type Target struct {
	Address string
	Mode    string
	Fan     string
}

// Plan computes the next desired state without side effects. Setpoint wins
// over delta when both are present.
func Plan(current model.Snapshot, v action.Validated) (model.Result, error) {
	res := model.Result{
		Current:    current,
		Action:     v.Action,
		Validation: model.Validation{Clamped: v.Clamped},
		Next: model.DesiredState{
			Power:     current.Power,
			SetpointC: current.SetpointC,
		},
	}

	if v.Power != "" {
		res.Next.Power = v.Power
	}

	switch {
	case v.SetpointC != nil:
		res.Next.SetpointC = model.Float(*v.SetpointC)
	case v.DeltaC != nil:
		if current.SetpointC == nil {
			return model.Result{}, ErrUnknownState
		}
		next := action.ClampSetpoint(*current.SetpointC + *v.DeltaC)
		res.Next.SetpointC = &next
	}

	if v.TemperatureChange() && v.Power != model.PowerOff {
		res.Next.Power = model.PowerOn
	}

	res.Changes.PowerChanged = current.Power != res.Next.Power || v.Power == model.PowerOff
	res.Changes.SetpointChanged = setpointChanged(current.SetpointC, res.Next.SetpointC)
	res.Changed = res.Changes.PowerChanged || res.Changes.SetpointChanged
	return res, nil
}

func setpointChanged(cur, next *float64) bool {
	switch {
	case cur == nil && next == nil:
		return false
	case cur == nil || next == nil:
		return true
	}
	return math.Abs(*cur-*next) > SetpointTolerance+1e-9
}

// BuildCommand renders the firmware payload for a desired state.
func BuildCommand(next model.DesiredState, t Target) model.Command {
	cmd := model.Command{
		Power: "on",
		Mode:  t.Mode,
		Fan:   t.Fan,
	}
	if next.Power == model.PowerOff {
		cmd.Power = "off"
	}
	if next.SetpointC != nil {
		cmd.Temp = strconv.FormatFloat(*next.SetpointC, 'f', -1, 64)
	}
	if cmd.Mode == "" {
		cmd.Mode = DefaultMode
	}
	if cmd.Fan == "" {
		cmd.Fan = DefaultFan
	}
	return cmd
}

type Reconciler struct {
	dispatcher Dispatcher
}

func New(d Dispatcher) *Reconciler {
	return &Reconciler{dispatcher: d}
}

// Reconcile plans the next state and, when it changed, dispatches exactly one
// command. The dispatch is detached from ctx cancellation once started and is
// never retried; its outcome is recorded in the result.
func (r *Reconciler) Reconcile(ctx context.Context, current model.Snapshot, v action.Validated, t Target) (model.Result, error) {
	res, err := Plan(current, v)
	if err != nil {
		return res, err
	}
	if !res.Changed {
		return res, nil
	}

	if t.Address == "" {
		res.Dispatch = model.Dispatch{Reason: ReasonNoAddress}
		return res, nil
	}

	cmd := BuildCommand(res.Next, t)
	out := r.dispatcher.Dispatch(context.WithoutCancel(ctx), t.Address, cmd)
	res.Dispatch = model.Dispatch{
		Attempted: true,
		Succeeded: out.Published,
		Reason:    out.Reason,
		Address:   t.Address,
		Command:   &cmd,
	}
	return res, nil
}
