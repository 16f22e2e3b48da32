// Package persona defines the bot's voice: the system prompt prepended to
// every completion, the canned deflections that short-circuit restricted
// topics at zero token cost, and the user-facing notice texts.
//
// Operators may override the built-in defaults with a YAML file. The file is
// validated against an embedded JSON schema before it is applied, so an
// invalid file never replaces the live persona.
package persona

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// Deflection is a restricted-topic rule: when any keyword matches the user
// prompt, Reply is sent instead of calling the completion API.
type Deflection struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Reply    string   `yaml:"reply" json:"reply"`
}

// Persona holds the prompt preamble, deflection rules, and notice texts.
type Persona struct {
	// SystemPrompt is the preamble before memory and the current message.
	// Two placeholders are substituted at assembly time: {{name}} (the bot's
	// display name) and {{date}} (the current date).
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`

	Deflections []Deflection `yaml:"deflections,omitempty" json:"deflections,omitempty"`

	// Notices shown to users by the orchestrator. Empty values fall back to
	// the defaults.
	BudgetNotice    string `yaml:"budgetNotice,omitempty" json:"budgetNotice,omitempty"`
	SilencedNotice  string `yaml:"silencedNotice,omitempty" json:"silencedNotice,omitempty"`
	ErrorNotice     string `yaml:"errorNotice,omitempty" json:"errorNotice,omitempty"`
	RateLimitNotice string `yaml:"rateLimitNotice,omitempty" json:"rateLimitNotice,omitempty"`
}

// Default returns the built-in persona, mirroring the deployed bot's voice.
func Default() *Persona {
	return &Persona{
		SystemPrompt: "You are {{name}}, a friendly gaming companion for the DMS.EXE community. " +
			"Be concise, natural, and direct. No third-person narration. Date: {{date}}.",
		Deflections: []Deflection{
			{
				Keywords: []string{
					"sensitivity", "sens", "dpi", "aim", "mouse settings",
					"aim settings", "setup", "mouse config", "best settings",
				},
				Reply: "For sensitivity settings, please state your device in the test channel.",
			},
		},
		BudgetNotice:    "Daily AI interaction limit reached. Try again tomorrow!",
		SilencedNotice:  "Shhh, I'm in silent mode. Admins can wake me up if needed!",
		ErrorNotice:     "Oops! My circuits are a bit tangled. Try rephrasing or ask again later?",
		RateLimitNotice: "I'm getting too many requests right now. Try again shortly!",
	}
}

// Load reads a persona YAML file, validates it against the embedded schema,
// and returns it with defaults filled in for any omitted notice. The
// returned persona is independent of the file; validation failure leaves the
// caller's current persona untouched.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes a raw persona YAML payload.
func Parse(data []byte) (*Persona, error) {
	// Schema validation wants generic JSON values, so decode YAML to any
	// first and round-trip through encoding/json.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persona: parse yaml: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("persona: convert to json: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	var inst any
	if err := json.Unmarshal(jsonDoc, &inst); err != nil {
		return nil, fmt.Errorf("persona: reload json: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("persona: schema validation: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("persona: decode: %w", err)
	}
	if p.SystemPrompt == "" {
		p.SystemPrompt = Default().SystemPrompt
	}
	return p, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("persona.schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, fmt.Errorf("persona: add schema resource: %w", err)
	}
	schema, err := c.Compile("persona.schema.json")
	if err != nil {
		return nil, fmt.Errorf("persona: compile schema: %w", err)
	}
	return schema, nil
}

// AssemblePrompt builds the full prompt text: preamble, optional transcript
// block, and the current message framed for a text-completion model.
func (p *Persona) AssemblePrompt(botName, transcript, userPrompt string) string {
	preamble := strings.ReplaceAll(p.SystemPrompt, "{{name}}", botName)
	preamble = strings.ReplaceAll(preamble, "{{date}}", time.Now().UTC().Format("2006-01-02"))

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	if transcript != "" {
		b.WriteString(transcript)
	}
	b.WriteString("User: ")
	b.WriteString(userPrompt)
	b.WriteString("\n")
	b.WriteString(botName)
	b.WriteString(":")
	return b.String()
}

// MatchDeflection returns the canned reply for the first deflection rule
// whose keyword appears in text (case-insensitive substring match), or
// ("", false) when no rule matches.
func (p *Persona) MatchDeflection(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, d := range p.Deflections {
		for _, kw := range d.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return d.Reply, true
			}
		}
	}
	return "", false
}
