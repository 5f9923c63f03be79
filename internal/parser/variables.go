package parser

import (
	"regexp"
	"strings"
)

// VariableDetector finds {{variable}} placeholders in subjects and bodies
type VariableDetector struct {
	pattern *regexp.Regexp
}

// NewVariableDetector creates a new variable detector
func NewVariableDetector() *VariableDetector {
	return &VariableDetector{
		pattern: regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_ .\-]*?)\s*\}\}`),
	}
}

// DetectVariables returns placeholder names in order of first appearance,
// lowercased and without duplicates
func (d *VariableDetector) DetectVariables(texts ...string) []string {
	var vars []string
	seen := make(map[string]bool)

	for _, text := range texts {
		for _, match := range d.pattern.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(strings.TrimSpace(match[1]))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			vars = append(vars, name)
		}
	}

	return vars
}

// Missing returns the variables that none of the available columns provide.
// Column names are compared case-insensitively.
func (d *VariableDetector) Missing(vars []string, columns []string) []string {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(strings.TrimSpace(c))] = true
	}

	missing := []string{}
	for _, v := range vars {
		if !have[v] {
			missing = append(missing, v)
		}
	}
	return missing
}
