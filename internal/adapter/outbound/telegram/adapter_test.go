package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/notify"
)

func TestBuildKeyboardHasSixButtons(t *testing.T) {
	kb := buildKeyboard("req-1")
	count := 0
	for _, row := range kb.InlineKeyboard {
		count += len(row)
	}
	if count != 6 {
		t.Fatalf("expected 6 buttons, got %d", count)
	}
}

func TestRenderPromptIncludesRequestID(t *testing.T) {
	text := renderPrompt(notify.Prompt{RequestID: "req-1", Service: "gh", Method: "GET", Path: "/user", AgentAddress: "1.2.3.4", RequestedAt: time.Now()})
	if !strings.Contains(text, "req-1") || !strings.Contains(text, "gh") {
		t.Fatalf("prompt text missing expected fields: %s", text)
	}
}

func TestChoiceActionTTL(t *testing.T) {
	if ttl, ok := notify.ChoiceApprove1h.TTL(); !ok || ttl != grant.TTL1h {
		t.Fatalf("expected 1h TTL, got %v ok=%v", ttl, ok)
	}
	if _, ok := notify.ChoiceDeny.TTL(); ok {
		t.Fatal("expected deny to have no TTL")
	}
}
