package persona_test

import (
	"strings"
	"testing"

	"github.com/Ayomide650/DMS-Assistant/internal/assistant/persona"
)

func TestDefaultIsComplete(t *testing.T) {
	p := persona.Default()
	if p.SystemPrompt == "" {
		t.Error("default system prompt empty")
	}
	for name, v := range map[string]string{
		"budget":     p.BudgetNotice,
		"silenced":   p.SilencedNotice,
		"error":      p.ErrorNotice,
		"rate limit": p.RateLimitNotice,
	} {
		if v == "" {
			t.Errorf("default %s notice empty", name)
		}
	}
	if len(p.Deflections) == 0 {
		t.Error("default persona has no deflections")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	p, err := persona.Parse([]byte(`
systemPrompt: "You are {{name}}. Today is {{date}}."
budgetNotice: "Out of tokens!"
deflections:
  - keywords: ["crosshair"]
    reply: "Check the pinned message."
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.BudgetNotice != "Out of tokens!" {
		t.Errorf("budget notice not overridden: %q", p.BudgetNotice)
	}
	// Omitted notices keep their defaults.
	if p.SilencedNotice != persona.Default().SilencedNotice {
		t.Errorf("silenced notice should keep default, got %q", p.SilencedNotice)
	}
	if len(p.Deflections) != 1 || p.Deflections[0].Reply != "Check the pinned message." {
		t.Errorf("deflections not replaced: %+v", p.Deflections)
	}
}

func TestParseRejectsInvalidShape(t *testing.T) {
	cases := map[string]string{
		"wrong prompt type":      `systemPrompt: [1, 2, 3]`,
		"deflection not a list":  `deflections: "nope"`,
		"deflection missing key": "deflections:\n  - reply: \"r\"",
	}
	for name, doc := range cases {
		if _, err := persona.Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := persona.Parse([]byte("systemPrompt: [unclosed")); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestAssemblePrompt(t *testing.T) {
	p := persona.Default()
	got := p.AssemblePrompt("Dora", "User: earlier\nAssistant: reply\n", "what now?")

	if !strings.Contains(got, "Dora") {
		t.Error("bot name not substituted")
	}
	if strings.Contains(got, "{{name}}") || strings.Contains(got, "{{date}}") {
		t.Error("placeholders left in prompt")
	}
	if !strings.Contains(got, "User: earlier\nAssistant: reply\n") {
		t.Error("transcript missing")
	}
	if !strings.HasSuffix(got, "User: what now?\nDora:") {
		t.Errorf("prompt must end with the completion cue, got ...%q", got[len(got)-40:])
	}
}

func TestAssemblePromptWithoutTranscript(t *testing.T) {
	got := persona.Default().AssemblePrompt("Dora", "", "hi")
	if !strings.HasSuffix(got, "User: hi\nDora:") {
		t.Errorf("unexpected suffix: %q", got)
	}
}

func TestMatchDeflection(t *testing.T) {
	p := persona.Default()

	reply, ok := p.MatchDeflection("What DPI do you recommend?")
	if !ok {
		t.Fatal("expected case-insensitive keyword match")
	}
	if reply != p.Deflections[0].Reply {
		t.Errorf("unexpected reply: %q", reply)
	}

	if _, ok := p.MatchDeflection("tell me a story"); ok {
		t.Error("unexpected deflection match")
	}
}
