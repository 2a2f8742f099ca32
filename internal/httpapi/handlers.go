// Package httpapi exposes the feedback pipeline and the device reads over
// HTTP and WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kishlaychandan/feedback-backend/internal/feedback"
	"github.com/kishlaychandan/feedback-backend/internal/model"
	"github.com/kishlaychandan/feedback-backend/internal/store"
	"github.com/kishlaychandan/feedback-backend/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// FeedbackService runs one feedback request end to end.
type FeedbackService interface {
	Handle(ctx context.Context, in feedback.Request) (*feedback.Response, error)
}

// DeviceStore is the read side of the device and conversation store.
type DeviceStore interface {
	FindDevice(ctx context.Context, zoneID string) (*store.Device, string, error)
	PrimaryPort(ctx context.Context, dev *store.Device) (*store.Port, error)
	ListPorts(ctx context.Context, dev *store.Device) ([]store.Port, error)
	ListTurns(ctx context.Context, deviceID, sessionID string, limit int) ([]store.ChatMessage, error)
}

// Transport reports whether the command transport is connected.
type Transport interface {
	Connected() bool
}

type Options struct {
	LLMProvider  string
	LLMAvailable bool
	Transport    Transport
	Now          func() time.Time
}

type Handler struct {
	svc   FeedbackService
	store DeviceStore
	opts  Options
}

func NewHandler(svc FeedbackService, st DeviceStore, opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{svc: svc, store: st, opts: opts}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "code": status})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connected := h.opts.Transport != nil && h.opts.Transport.Connected()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        serviceName,
		"llm_provider":   h.opts.LLMProvider,
		"llm_available":  h.opts.LLMAvailable,
		"mqtt_connected": connected,
	})
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedback.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid JSON body",
			"code":  feedback.CodeValidation,
		})
		return
	}
	req.ClientIP = clientIP(r)
	req.RequestID = middleware.GetReqID(r.Context())

	resp, err := h.svc.Handle(r.Context(), req)
	if err != nil {
		writeFeedbackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeFeedbackError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *feedback.Error
	if errors.As(err, &fe) {
		body := map[string]any{"error": fe.Message, "code": fe.Code}
		if fe.ZoneID != "" {
			body["zoneId"] = fe.ZoneID
		}
		if fe.SessionID != "" {
			body["sessionId"] = fe.SessionID
		}
		writeJSON(w, fe.HTTPStatus(), body)
		return
	}
	slog.Error("feedback request failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zoneID := strings.TrimSpace(q.Get("zoneId"))
	sessionID := strings.TrimSpace(q.Get("sessionId"))
	if zoneID == "" || sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "zoneId and sessionId are required")
		return
	}
	limit := parseIntQuery(r, "limit", store.DefaultTurnLimit)

	turns, err := h.store.ListTurns(r.Context(), zoneID, sessionID, limit)
	if err != nil {
		slog.Error("conversation query failed", "zone_id", zoneID, "session_id", sessionID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list conversation")
		return
	}
	if turns == nil {
		turns = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zoneId":    zoneID,
		"sessionId": sessionID,
		"turns":     turns,
	})
}

func (h *Handler) Device(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "deviceId"))
	dev, address, err := h.store.FindDevice(r.Context(), id)
	if err != nil {
		slog.Error("device lookup failed", "device_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load device")
		return
	}
	if dev == nil {
		writeJSONError(w, http.StatusNotFound, "device not found")
		return
	}
	ports, err := h.store.ListPorts(r.Context(), dev)
	if err != nil {
		slog.Error("port lookup failed", "device_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load ports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":         dev,
		"ports":          ports,
		"controlAddress": address,
	})
}

type telemetryResponse struct {
	DeviceID       string `json:"deviceId"`
	ControlAddress string `json:"controlAddress"`
	model.Snapshot
}

func (h *Handler) Telemetry(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "deviceId"))
	dev, address, err := h.store.FindDevice(r.Context(), id)
	if err != nil {
		slog.Error("device lookup failed", "device_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load device")
		return
	}
	if dev == nil {
		writeJSONError(w, http.StatusNotFound, "device not found")
		return
	}
	port, err := h.store.PrimaryPort(r.Context(), dev)
	if err != nil {
		slog.Error("port lookup failed", "device_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load ports")
		return
	}
	if port == nil {
		writeJSONError(w, http.StatusNotFound, "port not found")
		return
	}
	writeJSON(w, http.StatusOK, telemetryResponse{
		DeviceID:       dev.DeviceID,
		ControlAddress: address,
		Snapshot:       telemetry.Read(dev, port, h.opts.Now()),
	})
}

// clientIP strips the port, if any, from the address left by RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
