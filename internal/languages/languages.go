// Package languages is the catalogue of snippet languages the app knows how
// to label and highlight.
package languages

import "strings"

// Language describes one selectable snippet language.
type Language struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Default is used when a snippet is created without a language.
const Default = "javascript"

var catalogue = []Language{
	{"javascript", "JavaScript", "yellow"},
	{"typescript", "TypeScript", "blue"},
	{"python", "Python", "green"},
	{"java", "Java", "red"},
	{"css", "CSS", "purple"},
	{"html", "HTML", "orange"},
	{"react", "React", "cyan"},
	{"vue", "Vue", "emerald"},
	{"angular", "Angular", "red"},
	{"node", "Node.js", "green"},
	{"php", "PHP", "indigo"},
	{"ruby", "Ruby", "red"},
	{"go", "Go", "blue"},
	{"rust", "Rust", "orange"},
	{"swift", "Swift", "orange"},
	{"kotlin", "Kotlin", "purple"},
	{"dart", "Dart", "blue"},
	{"c", "C", "gray"},
	{"cpp", "C++", "blue"},
	{"csharp", "C#", "purple"},
	{"sql", "SQL", "blue"},
	{"bash", "Bash", "gray"},
	{"json", "JSON", "yellow"},
	{"yaml", "YAML", "red"},
	{"markdown", "Markdown", "gray"},
	{"docker", "Docker", "blue"},
	{"graphql", "GraphQL", "purple"},
	{"shell", "Shell", "gray"},
	{"powershell", "PowerShell", "blue"},
	{"r", "R", "blue"},
	{"scala", "Scala", "red"},
	{"elixir", "Elixir", "purple"},
	{"clojure", "Clojure", "green"},
	{"haskell", "Haskell", "purple"},
	{"lua", "Lua", "blue"},
	{"perl", "Perl", "blue"},
	{"assembly", "Assembly", "gray"},
	{"solidity", "Solidity", "gray"},
	{"terraform", "Terraform", "purple"},
	{"nginx", "Nginx", "green"},
}

// lexers maps catalogue values whose highlighter name differs.
var lexers = map[string]string{
	"react":     "jsx",
	"vue":       "html",
	"angular":   "typescript",
	"node":      "javascript",
	"csharp":    "c#",
	"cpp":       "c++",
	"docker":    "docker",
	"shell":     "bash",
	"assembly":  "nasm",
	"terraform": "hcl",
}

var byValue = func() map[string]Language {
	m := make(map[string]Language, len(catalogue))
	for _, l := range catalogue {
		m[l.Value] = l
	}
	return m
}()

// List returns a copy of the catalogue in display order.
func List() []Language {
	out := make([]Language, len(catalogue))
	copy(out, catalogue)
	return out
}

// Normalize lowercases and trims a language value.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Valid reports whether value (after Normalize) is in the catalogue.
func Valid(value string) bool {
	_, ok := byValue[Normalize(value)]
	return ok
}

// Lookup returns the catalogue entry for value.
func Lookup(value string) (Language, bool) {
	l, ok := byValue[Normalize(value)]
	return l, ok
}

// Lexer returns the syntax highlighter name for a catalogue value.
func Lexer(value string) string {
	v := Normalize(value)
	if name, ok := lexers[v]; ok {
		return name
	}
	return v
}
