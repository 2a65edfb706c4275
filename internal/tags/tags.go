// Package tags normalises user-entered snippet tags and offers completions.
package tags

import "strings"

const (
	// MaxTags is the most tags a snippet may carry.
	MaxTags = 10
	// MaxSuggestions caps the completion list.
	MaxSuggestions = 8
	// MaxTagLength caps a single tag.
	MaxTagLength = 32
)

// Common is the built-in suggestion list.
var Common = []string{
	"javascript", "typescript", "react", "vue", "angular", "node", "express",
	"python", "django", "flask", "java", "spring", "css", "html", "sass",
	"tailwind", "bootstrap", "api", "rest", "graphql", "database", "sql",
	"mongodb", "firebase", "aws", "docker", "git", "testing", "jest",
	"cypress", "webpack", "vite", "npm", "yarn", "authentication", "security",
	"performance", "optimization", "responsive", "mobile", "desktop",
	"frontend", "backend", "fullstack", "algorithm", "data-structure",
	"utility", "helper", "component", "hook", "function", "class",
}

// Normalize lowercases and trims every tag, drops empty and over-long ones,
// removes duplicates (first occurrence wins) and keeps at most MaxTags.
// The result is never nil.
func Normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))

	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || len(t) > MaxTagLength || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// Suggest returns up to MaxSuggestions tags containing input
// (case-insensitive) that are not already in current. Candidates are extra
// followed by Common, de-duplicated. An empty input yields no suggestions.
func Suggest(input string, current, extra []string) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return []string{}
	}

	have := make(map[string]bool, len(current))
	for _, t := range current {
		have[strings.ToLower(t)] = true
	}

	out := make([]string, 0, MaxSuggestions)
	seen := make(map[string]bool)
	for _, list := range [][]string{extra, Common} {
		for _, t := range list {
			t = strings.ToLower(t)
			if seen[t] || have[t] || !strings.Contains(t, input) {
				continue
			}
			seen[t] = true
			out = append(out, t)
			if len(out) == MaxSuggestions {
				return out
			}
		}
	}
	return out
}
