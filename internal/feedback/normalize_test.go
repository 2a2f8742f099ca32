package feedback

import (
	"errors"
	"strings"
	"testing"

	"github.com/kishlaychandan/feedback-backend/internal/model"
)

func TestNormalizeRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"missing zone", Request{Message: "hi"}, "zoneId is required"},
		{"blank message", Request{ZoneID: "1", Message: "  \n\t "}, "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Normalize()
			var fe *Error
			if !errors.As(err, &fe) || fe.Code != CodeValidation || fe.Message != tt.want {
				t.Fatalf("expected validation error %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalizeBoundsAndDefaults(t *testing.T) {
	hist := make([]model.Turn, 0, 14)
	for i := 0; i < 12; i++ {
		hist = append(hist, model.Turn{Role: "system", Text: "turn"})
	}
	hist = append(hist, model.Turn{Role: model.RoleAssistant, Text: "   "})
	hist = append(hist, model.Turn{Role: model.RoleAssistant, Text: strings.Repeat("a", 600)})

	req, err := Request{
		ACID:     "  AC-001 ",
		Message:  "it's   still\n hot",
		History:  hist,
		ClientIP: "10.0.0.12",
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if req.ZoneID != "AC-001" {
		t.Fatalf("zone = %q, acId alias not applied", req.ZoneID)
	}
	if req.Message != "it's still hot" {
		t.Fatalf("message not collapsed: %q", req.Message)
	}
	if req.SessionID != "anon_100012" {
		t.Fatalf("session = %q", req.SessionID)
	}
	if len(req.History) != 9 {
		t.Fatalf("expected 9 history turns (last 10 minus one blank), got %d", len(req.History))
	}
	if req.History[0].Role != model.RoleUser {
		t.Fatalf("unknown roles should become user, got %q", req.History[0].Role)
	}
	last := req.History[len(req.History)-1]
	if last.Role != model.RoleAssistant || len([]rune(last.Text)) != 500 {
		t.Fatalf("unexpected last turn role=%q len=%d", last.Role, len(last.Text))
	}

	long, err := Request{ZoneID: strings.Repeat("z", 100), Message: strings.Repeat("m", 2500), SessionID: strings.Repeat("s", 90)}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(long.ZoneID) != 64 || len(long.Message) != 2000 || len(long.SessionID) != 80 {
		t.Fatalf("bounds not applied: %d %d %d", len(long.ZoneID), len(long.Message), len(long.SessionID))
	}
}

func TestAnonymousSessionWithoutIP(t *testing.T) {
	req, err := Request{ZoneID: "1", Message: "hi"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.HasPrefix(req.SessionID, "anon_") || len(req.SessionID) != 25 {
		t.Fatalf("unexpected session id %q", req.SessionID)
	}
}

func TestClassificationPrompt(t *testing.T) {
	req := Request{
		ZoneID:  "1",
		Message: "still hot",
		History: []model.Turn{
			{Role: model.RoleUser, Text: "set it to 24"},
			{Role: model.RoleAssistant, Text: "Done. On and set to 24°C."},
		},
	}
	want := "Zone ID: 1\nConversation so far:\nUser: set it to 24\nAssistant: Done. On and set to 24°C.\n\nLatest user message: still hot"
	if got := req.ClassificationPrompt(); got != want {
		t.Fatalf("prompt =\n%s\nwant\n%s", got, want)
	}

	req.History = nil
	if got := req.ClassificationPrompt(); got != "Zone ID: 1\nLatest user message: still hot" {
		t.Fatalf("prompt without history = %q", got)
	}
}
