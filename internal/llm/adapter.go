// Package llm is the generative side of the feedback pipeline: backends for
// Gemini and Ollama behind an adapter that bounds every call with its own
// timeout and reports failures as RATE_LIMIT, TIMEOUT or ERROR.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const DefaultTimeout = 15 * time.Second

type Adapter struct {
	backend Backend
	timeout time.Duration
	schema  *jsonschema.Schema
}

// NewAdapter wraps backend. A nil backend is allowed; every call then fails
// with ERROR so callers take their deterministic path.
func NewAdapter(backend Backend, timeout time.Duration) (*Adapter, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	schema, err := loadClassificationSchema()
	if err != nil {
		return nil, fmt.Errorf("compile classification schema: %w", err)
	}
	return &Adapter{backend: backend, timeout: timeout, schema: schema}, nil
}

func (a *Adapter) Available() bool { return a.backend != nil }

func (a *Adapter) Name() string {
	if a.backend == nil {
		return "none"
	}
	return a.backend.Name()
}

// Classify asks the backend for a structured classification of prompt.
func (a *Adapter) Classify(ctx context.Context, prompt string) (model.Classification, error) {
	text, err := a.generate(ctx, Request{
		System:      classifySystem,
		Prompt:      prompt,
		JSON:        true,
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   140,
	})
	if err != nil {
		return model.Classification{}, err
	}
	cls, err := a.parseClassification(text)
	if err != nil {
		return model.Classification{}, &Error{Reason: ReasonError, Err: err}
	}
	return cls, nil
}

// Reply asks the backend for a short prose answer. Any number in cited that
// appears without a unit gets °C appended.
func (a *Adapter) Reply(ctx context.Context, prompt string, cited ...float64) (string, error) {
	text, err := a.generate(ctx, Request{
		System:      replySystem,
		Prompt:      prompt,
		Temperature: 0.5,
		TopP:        0.95,
		MaxTokens:   180,
	})
	if err != nil {
		return "", err
	}
	out := NormalizeReply(text, cited...)
	if out == "" {
		return "", &Error{Reason: ReasonError, Err: errors.New("empty reply")}
	}
	return out, nil
}

type result struct {
	text string
	err  error
}

// generate races the backend call against the adapter timeout. On expiry the
// call's context is cancelled and its eventual result is dropped.
func (a *Adapter) generate(ctx context.Context, req Request) (string, error) {
	if a.backend == nil {
		return "", &Error{Reason: ReasonError, Err: ErrUnavailable}
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		text, err := a.backend.Generate(callCtx, req)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return "", wrap(r.err)
		}
		return r.text, nil
	case <-timer.C:
		return "", &Error{Reason: ReasonTimeout, Err: fmt.Errorf("no response within %s", a.timeout)}
	case <-ctx.Done():
		return "", wrap(ctx.Err())
	}
}

type rawClassification struct {
	Intent         string `json:"intent"`
	RequiresAction bool   `json:"requiresAction"`
	Action         *struct {
		Power     *string  `json:"power"`
		SetpointC *float64 `json:"setpointC"`
		DeltaC    *float64 `json:"deltaC"`
	} `json:"action"`
}

func (a *Adapter) parseClassification(text string) (model.Classification, error) {
	body := extractJSON(text)
	if body == "" {
		return model.Classification{}, errors.New("no JSON object in classification")
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return model.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return model.Classification{}, fmt.Errorf("invalid classification: %w", err)
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return model.Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	cls := model.Classification{Intent: model.Intent(raw.Intent), RequiresAction: raw.RequiresAction}
	if raw.Action != nil {
		act := model.Action{SetpointC: raw.Action.SetpointC, DeltaC: raw.Action.DeltaC}
		if raw.Action.Power != nil {
			act.Power = model.Power(strings.ToUpper(strings.TrimSpace(*raw.Action.Power)))
		}
		cls.Action = &act
	}
	return cls.Normalize(), nil
}

// extractJSON returns the outermost {...} span of text, tolerating code
// fences and chatter around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

var (
	fenceRe  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?(?:\s*(?:%|(?i:°\s*[cf]?|degrees?\b|celsius\b|c\b|k?wh?\b|watts?\b|hours?\b|h\b)))?`)
	unitRe   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// NormalizeReply trims a generated reply, collapses whitespace, adds °C to
// cited setpoints lacking a unit and ends it with terminal punctuation.
// Numbers already carrying a unit (°, %, W, kWh, hours) are left alone.
func NormalizeReply(text string, cited ...float64) string {
	s := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Trim(s, "\"'` ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if len(cited) > 0 {
		s = numberRe.ReplaceAllStringFunc(s, func(tok string) string {
			if !unitRe.MatchString(tok) {
				return tok
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return tok
			}
			for _, c := range cited {
				if c == v {
					return tok + "°C"
				}
			}
			return tok
		})
	}

	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}
