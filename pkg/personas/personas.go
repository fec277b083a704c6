// Package personas embeds the four fixed band-role persona texts plus the
// shared band policy and pattern DSL reference.
package personas

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed text/*.md
var textFS embed.FS

// personaFiles maps an agent id to its persona file key on disk.
var personaFiles = map[string]string{
	"drums":  "drummer",
	"bass":   "bassist",
	"melody": "melody",
	"chords": "chords",
}

// supportedModelPrefixes are the model families a persona frontmatter
// override may name; anything else is ignored and the agent falls back to
// the configured default model.
var supportedModelPrefixes = []string{"gpt-", "o3", "o4", "gemini-"}

func supportedModel(model string) bool {
	for _, p := range supportedModelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Persona is one agent's loaded system text plus its optional per-agent
// model override, parsed from the file's YAML frontmatter.
type Persona struct {
	Agent string
	Model string // empty means "use the default model"
	Body  string
}

type frontmatter struct {
	Agent string `yaml:"agent"`
	Model string `yaml:"model"`
}

// Load parses the embedded persona file for one agent id ("drums", "bass",
// "melody", "chords"); on disk the files are keyed by role name
// ("drummer", "bassist", "melody", "chords").
func Load(agent string) (Persona, error) {
	key, ok := personaFiles[agent]
	if !ok {
		return Persona{}, fmt.Errorf("personas: unknown agent %q", agent)
	}
	raw, err := textFS.ReadFile("text/" + key + ".md")
	if err != nil {
		return Persona{}, fmt.Errorf("personas: read persona %q: %w", key, err)
	}
	p, err := parse(raw)
	if err != nil {
		return Persona{}, err
	}
	if p.Agent == "" {
		p.Agent = agent
	}
	return p, nil
}

// SharedPolicy returns the band-wide policy block appended to every agent's
// system prompt.
func SharedPolicy() (string, error) {
	raw, err := textFS.ReadFile("text/policy.md")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// DSLReference returns the pattern DSL cheat sheet appended to every agent's
// system prompt.
func DSLReference() (string, error) {
	raw, err := textFS.ReadFile("text/dsl_reference.md")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// parse splits a persona file's "---\n...yaml...\n---\nbody" frontmatter
// block from its body text. A file with no frontmatter delimiter is
// returned whole as the body, with no agent or model set.
func parse(raw []byte) (Persona, error) {
	text := string(raw)
	if !strings.HasPrefix(text, "---\n") {
		return Persona{Body: strings.TrimSpace(text)}, nil
	}

	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Persona{}, fmt.Errorf("personas: unterminated frontmatter block")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Persona{}, fmt.Errorf("personas: invalid frontmatter: %w", err)
	}

	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	model := fm.Model
	if model != "" && !supportedModel(model) {
		model = ""
	}

	return Persona{
		Agent: fm.Agent,
		Model: model,
		Body:  strings.TrimSpace(body),
	}, nil
}
