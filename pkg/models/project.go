package models

import (
	"fmt"
	"path"
	"strings"
)

// Language is the declared language of a project under study.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
)

// Languages lists every supported language in report order.
var Languages = []Language{LangJavaScript, LangTypeScript}

var languageExtensions = map[Language][]string{
	LangJavaScript: {".js", ".jsx", ".mjs"},
	LangTypeScript: {".ts", ".tsx"},
}

// rulePrefixes maps analysis-server rule repositories to languages.
var rulePrefixes = map[string]Language{
	"js":         LangJavaScript,
	"javascript": LangJavaScript,
	"ts":         LangTypeScript,
	"typescript": LangTypeScript,
}

// ParseLanguage accepts the long and short language names.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "javascript", "js":
		return LangJavaScript, nil
	case "typescript", "ts":
		return LangTypeScript, nil
	default:
		return "", fmt.Errorf("unsupported language %q (use javascript or typescript)", s)
	}
}

// Short returns the abbreviated language name (js, ts).
func (l Language) Short() string {
	switch l {
	case LangJavaScript:
		return "js"
	case LangTypeScript:
		return "ts"
	default:
		return string(l)
	}
}

// Extensions returns the file extensions belonging to the language.
func (l Language) Extensions() []string {
	return languageExtensions[l]
}

// HasExtension reports whether the file path carries one of the language's extensions.
func (l Language) HasExtension(file string) bool {
	ext := strings.ToLower(path.Ext(file))
	for _, e := range languageExtensions[l] {
		if ext == e {
			return true
		}
	}
	return false
}

// RuleLanguage returns the language of a qualified rule such as "javascript:S1541".
// The second return value is false for unqualified or unknown repositories.
func RuleLanguage(rule string) (Language, bool) {
	idx := strings.Index(rule, ":")
	if idx <= 0 {
		return "", false
	}
	lang, ok := rulePrefixes[strings.ToLower(rule[:idx])]
	return lang, ok
}

// RuleCode strips the repository qualifier from a rule ("javascript:S1541" -> "S1541").
func RuleCode(rule string) string {
	if idx := strings.LastIndex(rule, ":"); idx != -1 {
		return rule[idx+1:]
	}
	return rule
}

// Project names one repository under study.
type Project struct {
	Owner    string   `json:"owner" koanf:"owner" toml:"owner"`
	Name     string   `json:"name" koanf:"name" toml:"name"`
	Language Language `json:"language" koanf:"language" toml:"language"`
}

// ParseProject parses "owner/name" with the given language.
func ParseProject(slug string, lang Language) (Project, error) {
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Project{}, fmt.Errorf("invalid project %q (want owner/name)", slug)
	}
	return Project{Owner: owner, Name: name, Language: lang}, nil
}

// Key returns the analysis-server project key.
func (p Project) Key() string {
	return p.Name
}

// Slug returns owner/name.
func (p Project) Slug() string {
	return p.Owner + "/" + p.Name
}

// CloneURL returns the HTTPS clone URL of the project on GitHub.
func (p Project) CloneURL() string {
	return "https://github.com/" + p.Slug() + ".git"
}

func (p Project) String() string {
	return fmt.Sprintf("%s (%s)", p.Slug(), p.Language.Short())
}

// FilterByLanguage returns the projects declared with the given language.
func FilterByLanguage(projects []Project, lang Language) []Project {
	var out []Project
	for _, p := range projects {
		if p.Language == lang {
			out = append(out, p)
		}
	}
	return out
}
