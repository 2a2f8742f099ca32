// Package feedback orchestrates one feedback request: classify, read the
// device, reconcile and dispatch, reply, and record the exchange.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/kishlaychandan/feedback-backend/internal/action"
	"github.com/kishlaychandan/feedback-backend/internal/audit"
	"github.com/kishlaychandan/feedback-backend/internal/fallback"
	"github.com/kishlaychandan/feedback-backend/internal/llm"
	"github.com/kishlaychandan/feedback-backend/internal/model"
	"github.com/kishlaychandan/feedback-backend/internal/observability"
	"github.com/kishlaychandan/feedback-backend/internal/reconcile"
	"github.com/kishlaychandan/feedback-backend/internal/respond"
	"github.com/kishlaychandan/feedback-backend/internal/store"
	"github.com/kishlaychandan/feedback-backend/internal/telemetry"
)

type Classifier interface {
	Classify(ctx context.Context, prompt string) (model.Classification, error)
}

// Store is the persistence the orchestrator reads devices from and records
// turns to.
type Store interface {
	FindDevice(ctx context.Context, zoneID string) (*store.Device, string, error)
	PrimaryPort(ctx context.Context, dev *store.Device) (*store.Port, error)
	RecordTurn(ctx context.Context, m *store.ChatMessage) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, current model.Snapshot, v action.Validated, t reconcile.Target) (model.Result, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, f respond.Facts, degraded bool) respond.Reply
}

// LLMStatus reports whether any generative call fell back during the request.
type LLMStatus struct {
	OK           bool    `json:"ok"`
	UsedFallback bool    `json:"usedFallback"`
	Reason       *string `json:"reason"`
	Message      *string `json:"message"`
}

type Response struct {
	Response        string         `json:"response"`
	OriginalMessage string         `json:"originalMessage"`
	ZoneID          string         `json:"zoneId"`
	SessionID       string         `json:"sessionId"`
	ControlAddress  string         `json:"controlAddress,omitempty"`
	Intent          model.Intent   `json:"intent"`
	RequiresAction  bool           `json:"requiresAction"`
	Action          *model.Action  `json:"action"`
	ReadData        map[string]any `json:"readData"`
	Computed        *model.Result  `json:"computed"`
	ChatStored      bool           `json:"chatStored"`
	LLM             LLMStatus      `json:"llm"`
}

type Options struct {
	ChatWritesEnabled bool
	Audit             audit.Sink
	Now               func() time.Time
}

type Service struct {
	classifier Classifier
	store      Store
	reconciler Reconciler
	synth      Synthesizer
	audit      audit.Sink
	chatWrites bool
	now        func() time.Time
}

// NewService wires the request pipeline. The collaborators are built once at
// startup and shared by every request.
func NewService(c Classifier, s Store, r Reconciler, syn Synthesizer, opts Options) *Service {
	svc := &Service{
		classifier: c,
		store:      s,
		reconciler: r,
		synth:      syn,
		audit:      opts.Audit,
		chatWrites: opts.ChatWritesEnabled,
		now:        opts.Now,
	}
	if svc.audit == nil {
		svc.audit = audit.Nop{}
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// Handle runs one request. The returned error is always a *Error for the
// terminating taxonomy, or a store failure.
func (s *Service) Handle(ctx context.Context, in Request) (*Response, error) {
	req, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	log := slog.With("zone_id", req.ZoneID, "session_id", req.SessionID, "request_id", req.RequestID)

	dev, address, err := s.store.FindDevice(ctx, req.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	if dev == nil {
		return nil, notFound("Device not found for zoneId: %s", req.ZoneID).withRequest(req)
	}
	port, err := s.store.PrimaryPort(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("find port: %w", err)
	}
	if port == nil {
		return nil, notFound("Port not found for device: %s", dev.DeviceID).withRequest(req)
	}

	stored := s.record(ctx, log, &store.ChatMessage{
		DeviceID:  req.ZoneID,
		SessionID: req.SessionID,
		Role:      string(model.RoleUser),
		Text:      req.Message,
		RequestID: req.RequestID,
	})

	// The degraded flag is set once; every later stage consults it.
	var (
		degraded bool
		reason   llm.Reason
	)
	cls, err := s.classify(ctx, req.ClassificationPrompt())
	if err != nil {
		degraded = true
		reason = llm.ReasonOf(err)
		cls = fallback.Classify(req.Message)
		observability.RecordFallback("classify", string(reason))
		log.Warn("classification fell back", "reason", reason, "error", err)
	}
	cls = cls.Normalize()
	source := "llm"
	if degraded {
		source = "fallback"
	}
	observability.RecordIntent(string(cls.Intent), source)
	log.Info("intent classified", "intent", cls.Intent, "requires_action", cls.RequiresAction, "source", source)

	snap := telemetry.Read(dev, port, s.now())

	resp := &Response{
		OriginalMessage: req.Message,
		ZoneID:          req.ZoneID,
		SessionID:       req.SessionID,
		ControlAddress:  address,
		Intent:          cls.Intent,
		RequiresAction:  cls.RequiresAction,
		ReadData:        telemetry.Project(cls.Intent, snap),
	}

	var clamped bool
	if cls.RequiresAction && cls.Action != nil {
		v := action.Validate(*cls.Action)
		v.Clamped = v.Clamped || cls.Clamped
		clamped = v.Clamped

		res, err := s.reconciler.Reconcile(ctx, snap, v, reconcile.Target{
			Address: address,
			Mode:    optionalInt(port.ACMode),
			Fan:     optionalInt(port.ACFanSpeed),
		})
		if err != nil {
			if errors.Is(err, reconcile.ErrUnknownState) {
				return nil, (&Error{
					Code:    CodeUnknownState,
					Message: fmt.Sprintf("Cannot apply a relative change: current setpoint is unknown for device: %s", dev.DeviceID),
					Err:     err,
				}).withRequest(req)
			}
			return nil, err
		}
		act := v.Action
		resp.Action = &act
		resp.Computed = &res
		s.observeDispatch(log, res)
		s.audit.Publish(ctx, audit.Event{
			RequestID:    req.RequestID,
			ZoneID:       req.ZoneID,
			SessionID:    req.SessionID,
			Intent:       cls.Intent,
			Current:      res.Current,
			Next:         res.Next,
			Changed:      res.Changed,
			Changes:      res.Changes,
			Dispatch:     res.Dispatch,
			Clamped:      clamped,
			UsedFallback: degraded,
			At:           s.now(),
		})
	}

	reply := s.synth.Synthesize(ctx, respond.Facts{
		Message:  req.Message,
		ZoneID:   req.ZoneID,
		Intent:   cls.Intent,
		Snapshot: snap,
		Result:   resp.Computed,
		Clamped:  clamped,
	}, degraded)
	if reply.Err != nil {
		reason = llm.ReasonOf(reply.Err)
		observability.RecordFallback("synthesize", string(reason))
		log.Warn("reply synthesis fell back", "reason", reason, "error", reply.Err)
	}
	resp.Response = reply.Text
	resp.LLM = llmStatus(degraded || reply.Err != nil, reason)

	assistant := &store.ChatMessage{
		DeviceID:       req.ZoneID,
		SessionID:      req.SessionID,
		Role:           string(model.RoleAssistant),
		Text:           truncate(resp.Response, maxStoredReplyLen),
		Intent:         string(cls.Intent),
		RequiresAction: &resp.RequiresAction,
		RequestID:      req.RequestID,
	}
	if resp.Action != nil {
		if b, err := json.Marshal(resp.Action); err == nil {
			assistant.Action = datatypes.JSON(b)
		}
	}
	stored = s.record(ctx, log, assistant) && stored
	resp.ChatStored = stored

	return resp, nil
}

func (s *Service) classify(ctx context.Context, prompt string) (model.Classification, error) {
	if s.classifier == nil {
		return model.Classification{}, &llm.Error{Reason: llm.ReasonError, Err: llm.ErrUnavailable}
	}
	return s.classifier.Classify(ctx, prompt)
}

// record writes a turn when chat writes are enabled and reports whether it
// was stored. Failures are logged and never fail the request.
func (s *Service) record(ctx context.Context, log *slog.Logger, m *store.ChatMessage) bool {
	if !s.chatWrites {
		return false
	}
	if err := s.store.RecordTurn(ctx, m); err != nil {
		log.Warn("failed to record chat turn", "role", m.Role, "error", err)
		return false
	}
	return true
}

func (s *Service) observeDispatch(log *slog.Logger, res model.Result) {
	var outcome string
	switch {
	case !res.Changed:
		outcome = "skipped"
	case !res.Dispatch.Attempted:
		outcome = "no_address"
	case res.Dispatch.Succeeded:
		outcome = "sent"
	default:
		outcome = "failed"
	}
	observability.RecordDispatch(outcome)
	if outcome == "failed" {
		log.Error("command dispatch failed", "address", res.Dispatch.Address, "reason", res.Dispatch.Reason)
		return
	}
	log.Info("reconciled", "changed", res.Changed, "dispatch", outcome)
}

func llmStatus(usedFallback bool, reason llm.Reason) LLMStatus {
	if !usedFallback {
		return LLMStatus{OK: true}
	}
	r := string(reason)
	var msg string
	switch reason {
	case llm.ReasonRateLimit:
		msg = "The language service is rate limited; a deterministic fallback was used."
	case llm.ReasonTimeout:
		msg = "The language service timed out; a deterministic fallback was used."
	default:
		msg = "The language service is unavailable; a deterministic fallback was used."
	}
	return LLMStatus{UsedFallback: true, Reason: &r, Message: &msg}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
