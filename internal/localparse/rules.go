package localparse

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/clypser/finance-bot/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// KindRule maps trigger phrases to a movement kind.
type KindRule struct {
	Kind     domain.MovementKind `yaml:"kind"`
	Triggers []string            `yaml:"triggers"`
}

// CategoryRule maps trigger phrases to a category label.
type CategoryRule struct {
	Label    string   `yaml:"label"`
	Triggers []string `yaml:"triggers"`
}

// CurrencyRule lists the ways a currency can be written.
type CurrencyRule struct {
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

// Rules is the keyword table used by Extract.
type Rules struct {
	Kinds      []KindRule                             `yaml:"kinds"`
	Categories map[domain.MovementKind][]CategoryRule `yaml:"categories"`
	Currencies []CurrencyRule                         `yaml:"currencies"`
	Fillers    []string                               `yaml:"fillers"`

	kindWords map[string]bool
	fillerSet map[string]bool
}

var defaultRules = MustLoadRules(defaultRulesYAML)

// DefaultRules returns the built-in keyword table.
func DefaultRules() *Rules {
	return defaultRules
}

// LoadRules parses a keyword table from YAML. Triggers and aliases are
// lowercased so matching can run on lowercased text.
func LoadRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("LoadRules: parse yaml: %w", err)
	}

	r.kindWords = make(map[string]bool)
	for i := range r.Kinds {
		if _, ok := domain.ParseMovementKind(string(r.Kinds[i].Kind)); !ok {
			return nil, fmt.Errorf("LoadRules: unknown kind %q", r.Kinds[i].Kind)
		}
		lowerAll(r.Kinds[i].Triggers)
		for _, t := range r.Kinds[i].Triggers {
			for _, w := range strings.Fields(t) {
				r.kindWords[w] = true
			}
		}
	}

	for kind, rules := range r.Categories {
		if _, ok := domain.ParseMovementKind(string(kind)); !ok {
			return nil, fmt.Errorf("LoadRules: unknown category kind %q", kind)
		}
		for i := range rules {
			lowerAll(rules[i].Triggers)
		}
	}

	for i := range r.Currencies {
		r.Currencies[i].Code = strings.ToUpper(r.Currencies[i].Code)
		lowerAll(r.Currencies[i].Aliases)
	}

	lowerAll(r.Fillers)
	r.fillerSet = make(map[string]bool, len(r.Fillers))
	for _, f := range r.Fillers {
		r.fillerSet[f] = true
	}

	return &r, nil
}

// MustLoadRules is like LoadRules but panics on error.
func MustLoadRules(data []byte) *Rules {
	r, err := LoadRules(data)
	if err != nil {
		panic(err)
	}
	return r
}

func lowerAll(ss []string) {
	for i, s := range ss {
		ss[i] = strings.ToLower(strings.TrimSpace(s))
	}
}
