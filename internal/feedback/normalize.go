package feedback

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

const (
	maxZoneIDLen      = 64
	maxSessionIDLen   = 80
	maxMessageLen     = 2000
	maxHistoryTurns   = 10
	maxHistoryTextLen = 500
	maxStoredReplyLen = 4000
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Request is one inbound feedback message.
type Request struct {
	Message   string       `json:"message"`
	ZoneID    string       `json:"zoneId"`
	ACID      string       `json:"acId,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	History   []model.Turn `json:"history,omitempty"`

	ClientIP  string `json:"-"`
	RequestID string `json:"-"`
}

// Normalize trims and bounds every field and fills in the session id. It
// fails only when zone or message is missing.
func (r Request) Normalize() (Request, error) {
	out := Request{ClientIP: r.ClientIP, RequestID: r.RequestID}

	zone := strings.TrimSpace(r.ZoneID)
	if zone == "" {
		zone = strings.TrimSpace(r.ACID)
	}
	out.ZoneID = truncate(zone, maxZoneIDLen)
	if out.ZoneID == "" {
		return out, validationError("zoneId is required")
	}

	out.Message = truncate(collapse(r.Message), maxMessageLen)
	if out.Message == "" {
		return out, validationError("message is required")
	}

	out.SessionID = truncate(strings.TrimSpace(r.SessionID), maxSessionIDLen)
	if out.SessionID == "" {
		out.SessionID = anonymousSession(r.ClientIP)
	}

	hist := r.History
	if len(hist) > maxHistoryTurns {
		hist = hist[len(hist)-maxHistoryTurns:]
	}
	for _, t := range hist {
		text := truncate(collapse(t.Text), maxHistoryTextLen)
		if text == "" {
			continue
		}
		role := model.RoleUser
		if t.Role == model.RoleAssistant {
			role = model.RoleAssistant
		}
		out.History = append(out.History, model.Turn{Role: role, Text: text})
	}
	return out, nil
}

// ClassificationPrompt renders the zone, rolling history and latest message.
func (r Request) ClassificationPrompt() string {
	var b strings.Builder
	b.WriteString("Zone ID: ")
	b.WriteString(r.ZoneID)
	b.WriteString("\n")
	if len(r.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range r.History {
			if t.Role == model.RoleAssistant {
				b.WriteString("Assistant: ")
			} else {
				b.WriteString("User: ")
			}
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Latest user message: ")
	b.WriteString(r.Message)
	return b.String()
}

func anonymousSession(ip string) string {
	id := truncate(nonAlnumRe.ReplaceAllString(ip, ""), 20)
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}
	return "anon_" + id
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
