// Package fallback is the deterministic path used whenever the generative
// backend is unavailable: a keyword classifier and templated replies.
package fallback

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kishlaychandan/feedback-backend/internal/action"
	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const defaultStepC = 2.0

var (
	humidityRe     = regexp.MustCompile(`\b(humidity|humid)\b`)
	consumptionRe  = regexp.MustCompile(`\b(consumption|watts?|kw|kwh|energy|power\s*usage)\b`)
	runHoursRe     = regexp.MustCompile(`\b(run\s*hours?|runtime|run\s*time|running\s*hours?)\b`)
	setpointReadRe = regexp.MustCompile(`\b(set\s*point|setpoint|temperature\s*set|temp\s*set|set\s*temp\s*\?)`)
	roomTempRe     = regexp.MustCompile(`\b(current\s*temp(erature)?|room\s*temp(erature)?|temperature\s*now|temperature\s*in\s*(here|the\s*room))\b`)

	powerOffRe = regexp.MustCompile(`\b(turn|switch|power|shut)\s*(it\s+|the\s+ac\s+|the\s+unit\s+)?off\b|\bac\s*off\b`)
	powerOnRe  = regexp.MustCompile(`\b(turn|switch|power)\s*(it\s+|the\s+ac\s+|the\s+unit\s+)?on\b|\bac\s*on\b`)

	setpointRe = regexp.MustCompile(`(?:\bset\s*(?:the\s+)?(?:temp|temperature|setpoint|ac|it)\s*(?:to|at)?|\bsetpoint\s*(?:to|at)?)\s*(-?\d+(?:\.\d+)?)`)
	targetRe   = regexp.MustCompile(`\b(?:increase|raise|decrease|lower|reduce)\b\D*?\bto\s+(-?\d+(?:\.\d+)?)`)
	increaseRe = regexp.MustCompile(`\b(increase|raise|higher|warmer)\b`)
	decreaseRe = regexp.MustCompile(`\b(decrease|lower|reduce|cooler)\b`)
	numberRe   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

	hotRe  = regexp.MustCompile(`\b(hot|boiling|sweating)\b`)
	coldRe = regexp.MustCompile(`\b(cold|chilly|freezing)\b`)
)

// Classify maps raw text to an intent and, for feedback, a proposed action.
// The first matching rule wins; the emitted action is already within
// validator bounds.
func Classify(text string) model.Classification {
	t := strings.ToLower(strings.TrimSpace(text))

	act := model.Action{}
	if powerOffRe.MatchString(t) {
		act.Power = model.PowerOff
	}
	if powerOnRe.MatchString(t) {
		act.Power = model.PowerOn
	}
	if m := setpointRe.FindStringSubmatch(t); m != nil {
		if v, ok := parse(m[1]); ok {
			act.SetpointC = &v
		}
	}
	if m := targetRe.FindStringSubmatch(t); m != nil && act.SetpointC == nil {
		if v, ok := parse(m[1]); ok {
			act.SetpointC = &v
		}
	} else if loc := increaseRe.FindStringIndex(t); loc != nil {
		act.DeltaC = model.Float(math.Abs(stepAfter(t, loc[1])))
	} else if loc := decreaseRe.FindStringIndex(t); loc != nil {
		act.DeltaC = model.Float(-math.Abs(stepAfter(t, loc[1])))
	}

	if intent, ok := readIntent(t, !act.Empty()); ok {
		return model.Classification{Intent: intent}
	}

	if act.Empty() {
		switch {
		case hotRe.MatchString(t):
			act = model.Action{DeltaC: model.Float(-defaultStepC), Power: model.PowerOn}
		case coldRe.MatchString(t):
			act = model.Action{DeltaC: model.Float(defaultStepC), Power: model.PowerOn}
		}
	}

	if act.Empty() {
		return model.Classification{Intent: model.IntentOther}
	}

	v := action.Validate(act)
	return model.Classification{
		Intent:         model.IntentFeedback,
		RequiresAction: true,
		Action:         &v.Action,
		Clamped:        v.Clamped,
	}
}

// readIntent matches the read-only keyword families. The setpoint and room
// temperature families yield to an explicit instruction in the same text, so
// "set the setpoint to 22" is a change, not a question.
func readIntent(t string, hasInstruction bool) (model.Intent, bool) {
	switch {
	case humidityRe.MatchString(t):
		return model.IntentGetHumidity, true
	case consumptionRe.MatchString(t):
		return model.IntentGetConsumption, true
	case runHoursRe.MatchString(t):
		return model.IntentGetRunHours, true
	case hasInstruction:
		return "", false
	case setpointReadRe.MatchString(t):
		return model.IntentGetSetpoint, true
	case roomTempRe.MatchString(t):
		return model.IntentGetRoomTemperature, true
	}
	return "", false
}

// stepAfter returns the first number following offset, or the default step.
func stepAfter(t string, offset int) float64 {
	if m := numberRe.FindString(t[offset:]); m != "" {
		if v, ok := parse(m); ok && v != 0 {
			return v
		}
	}
	return defaultStepC
}

func parse(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
