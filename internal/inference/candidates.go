package inference

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCandidates is used when no candidate file is configured.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Model: "gemini-2.5-flash"},
		{Model: "gemini-2.0-flash"},
		{Model: "gemini-1.5-flash"},
	}
}

type candidatesFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// ParseCandidates reads an ordered candidate list from YAML. Both a
// top-level list and a document with a "candidates" key are accepted.
func ParseCandidates(data []byte) ([]Candidate, error) {
	var file candidatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		var list []Candidate
		if err2 := yaml.Unmarshal(data, &list); err2 != nil {
			return nil, fmt.Errorf("ParseCandidates: parse yaml: %w", err)
		}
		file.Candidates = list
	}

	out := make([]Candidate, 0, len(file.Candidates))
	for i, c := range file.Candidates {
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		c.Model = strings.TrimSpace(c.Model)
		if c.Model == "" {
			return nil, fmt.Errorf("ParseCandidates: candidate %d has no model", i+1)
		}
		out = append(out, c)
	}
	return out, nil
}
