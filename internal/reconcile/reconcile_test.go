package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/kishlaychandan/feedback-backend/internal/action"
	"github.com/kishlaychandan/feedback-backend/internal/fallback"
	"github.com/kishlaychandan/feedback-backend/internal/model"
)

type recordingDispatcher struct {
	calls   []model.Command
	address []string
	outcome Outcome
	ctxErr  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, address string, cmd model.Command) Outcome {
	d.calls = append(d.calls, cmd)
	d.address = append(d.address, address)
	d.ctxErr = ctx.Err()
	return d.outcome
}

func snap(power model.Power, setpoint *float64) model.Snapshot {
	return model.Snapshot{Power: power, SetpointC: setpoint}
}

func validated(a model.Action) action.Validated { return action.Validate(a) }

func TestPlanScenarios(t *testing.T) {
	tests := []struct {
		name        string
		current     model.Snapshot
		action      model.Action
		wantPower   model.Power
		wantSet     float64
		wantChanged bool
	}{
		{
			name:        "explicit off while off redispatches",
			current:     snap(model.PowerOff, model.Float(24)),
			action:      model.Action{Power: model.PowerOff},
			wantPower:   model.PowerOff,
			wantSet:     24,
			wantChanged: true,
		},
		{
			name:        "setpoint already matches",
			current:     snap(model.PowerOn, model.Float(22)),
			action:      model.Action{SetpointC: model.Float(22)},
			wantPower:   model.PowerOn,
			wantSet:     22,
			wantChanged: false,
		},
		{
			name:        "still hot lowers by two",
			current:     snap(model.PowerOn, model.Float(24)),
			action:      model.Action{DeltaC: model.Float(-2), Power: model.PowerOn},
			wantPower:   model.PowerOn,
			wantSet:     22,
			wantChanged: true,
		},
		{
			name:        "delta clamps to upper bound",
			current:     snap(model.PowerOn, model.Float(29)),
			action:      model.Action{DeltaC: model.Float(5)},
			wantPower:   model.PowerOn,
			wantSet:     30,
			wantChanged: true,
		},
		{
			name:        "setpoint on powered off unit turns it on",
			current:     snap(model.PowerOff, model.Float(24)),
			action:      model.Action{SetpointC: model.Float(24)},
			wantPower:   model.PowerOn,
			wantSet:     24,
			wantChanged: true,
		},
		{
			name:        "explicit off with setpoint stays off",
			current:     snap(model.PowerOn, model.Float(24)),
			action:      model.Action{Power: model.PowerOff, SetpointC: model.Float(20)},
			wantPower:   model.PowerOff,
			wantSet:     20,
			wantChanged: true,
		},
		{
			name:        "setpoint wins over delta",
			current:     snap(model.PowerOn, model.Float(24)),
			action:      model.Action{SetpointC: model.Float(21), DeltaC: model.Float(5)},
			wantPower:   model.PowerOn,
			wantSet:     21,
			wantChanged: true,
		},
		{
			name:        "sub-tolerance difference is not a change",
			current:     snap(model.PowerOn, model.Float(22)),
			action:      model.Action{SetpointC: model.Float(22.1)},
			wantPower:   model.PowerOn,
			wantSet:     22.1,
			wantChanged: false,
		},
		{
			name:        "absolute setpoint on unknown baseline",
			current:     snap("", nil),
			action:      model.Action{SetpointC: model.Float(23)},
			wantPower:   model.PowerOn,
			wantSet:     23,
			wantChanged: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Plan(tt.current, validated(tt.action))
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if res.Next.Power != tt.wantPower {
				t.Fatalf("next power = %q, want %q", res.Next.Power, tt.wantPower)
			}
			if res.Next.SetpointC == nil || *res.Next.SetpointC != tt.wantSet {
				t.Fatalf("next setpoint = %v, want %v", res.Next.SetpointC, tt.wantSet)
			}
			if res.Changed != tt.wantChanged {
				t.Fatalf("changed = %v, want %v (%+v)", res.Changed, tt.wantChanged, res.Changes)
			}
		})
	}
}

func TestPlanDeltaOnUnknownBaseline(t *testing.T) {
	_, err := Plan(snap(model.PowerOn, nil), validated(model.Action{DeltaC: model.Float(-2)}))
	if !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestPlanPowerOnlyOnUnknownSetpoint(t *testing.T) {
	res, err := Plan(snap(model.PowerOff, nil), validated(model.Action{Power: model.PowerOn}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !res.Changed || res.Next.SetpointC != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPlanIdempotent(t *testing.T) {
	currents := []model.Snapshot{
		snap(model.PowerOn, model.Float(24)),
		snap(model.PowerOff, model.Float(18)),
		snap(model.PowerOn, model.Float(29.5)),
	}
	actions := []model.Action{
		{SetpointC: model.Float(22)},
		{DeltaC: model.Float(-2), Power: model.PowerOn},
		{DeltaC: model.Float(8)},
		{Power: model.PowerOn},
		{SetpointC: model.Float(40)},
	}
	for _, cur := range currents {
		for _, a := range actions {
			v := validated(a)
			first, err := Plan(cur, v)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			fed := model.Snapshot{Power: first.Next.Power, SetpointC: first.Next.SetpointC}
			second, err := Plan(fed, validated(model.Action{Power: a.Power, SetpointC: first.Next.SetpointC}))
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if second.Changed {
				t.Fatalf("second reconcile changed for current=%+v action=%+v: %+v", cur, a, second.Changes)
			}
			if a.DeltaC == nil {
				again, _ := Plan(fed, v)
				if again.Changed {
					t.Fatalf("repeating %+v on its own result changed state", a)
				}
			}
		}
	}
}

func TestPlanAutoOn(t *testing.T) {
	for _, p := range []model.Power{"", model.PowerOn} {
		for _, a := range []model.Action{
			{Power: p, SetpointC: model.Float(21)},
			{Power: p, DeltaC: model.Float(1)},
		} {
			res, err := Plan(snap(model.PowerOff, model.Float(24)), validated(a))
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if res.Next.Power != model.PowerOn {
				t.Fatalf("auto-on violated for %+v: %q", a, res.Next.Power)
			}
		}
	}
}

func TestPlanFallbackStillHot(t *testing.T) {
	cls := fallback.Classify("still hot")
	if cls.Action == nil {
		t.Fatalf("expected fallback action")
	}
	res, err := Plan(snap(model.PowerOn, model.Float(24)), validated(*cls.Action))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !res.Changed || *res.Next.SetpointC != 22 || res.Next.Power != model.PowerOn {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestReconcileDispatchesOnceWhenChanged(t *testing.T) {
	d := &recordingDispatcher{outcome: Outcome{Published: true}}
	r := New(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mode := "2"
	res, err := r.Reconcile(ctx, snap(model.PowerOn, model.Float(24)), validated(model.Action{DeltaC: model.Float(-2)}), Target{Address: "68:FE", Mode: mode})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(d.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(d.calls))
	}
	if d.ctxErr != nil {
		t.Fatalf("dispatch context should not carry caller cancellation: %v", d.ctxErr)
	}
	want := model.Command{Power: "on", Temp: "22", Mode: "2", Fan: "1"}
	if d.calls[0] != want {
		t.Fatalf("command = %+v, want %+v", d.calls[0], want)
	}
	if !res.Dispatch.Attempted || !res.Dispatch.Succeeded || res.Dispatch.Address != "68:FE" {
		t.Fatalf("unexpected dispatch %+v", res.Dispatch)
	}
}

func TestReconcileSkipsDispatchWhenUnchanged(t *testing.T) {
	d := &recordingDispatcher{outcome: Outcome{Published: true}}
	res, err := New(d).Reconcile(context.Background(), snap(model.PowerOn, model.Float(22)), validated(model.Action{SetpointC: model.Float(22)}), Target{Address: "68:FE"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(d.calls) != 0 || res.Dispatch.Attempted {
		t.Fatalf("dispatch should be skipped, got %d calls", len(d.calls))
	}
}

func TestReconcileRecordsDispatchFailure(t *testing.T) {
	d := &recordingDispatcher{outcome: Outcome{Reason: "publish timeout"}}
	res, err := New(d).Reconcile(context.Background(), snap(model.PowerOn, model.Float(24)), validated(model.Action{Power: model.PowerOff}), Target{Address: "68:FE", Fan: "3"})
	if err != nil {
		t.Fatalf("dispatch failure must not raise: %v", err)
	}
	if res.Dispatch.Succeeded || res.Dispatch.Reason != "publish timeout" {
		t.Fatalf("unexpected dispatch %+v", res.Dispatch)
	}
	if len(d.calls) != 1 || d.calls[0].Power != "off" || d.calls[0].Fan != "3" {
		t.Fatalf("unexpected calls %+v", d.calls)
	}
}

func TestReconcileWithoutAddress(t *testing.T) {
	d := &recordingDispatcher{}
	res, err := New(d).Reconcile(context.Background(), snap(model.PowerOff, model.Float(24)), validated(model.Action{Power: model.PowerOn}), Target{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !res.Changed || res.Dispatch.Attempted || res.Dispatch.Reason != ReasonNoAddress {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(d.calls) != 0 {
		t.Fatalf("no dispatch expected without an address")
	}
}
