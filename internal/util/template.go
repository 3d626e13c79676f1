package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// promptFuncs are available to every prompt template.
var promptFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items any) string {
		return strings.Join(Strings(items), sep)
	},
	"bullets":  Bullets,
	"numbered": Numbered,
	"indent":   Indent,
	"truncate": Truncate,
	"quote":    strconv.Quote,
	"toJSON": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

// RenderTemplate renders a prompt template with text/template. Unlike
// html/template nothing is escaped and missing keys render empty.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderPrompt renders text like RenderTemplate and tidies the result for a
// model: surrounding whitespace is trimmed and runs of blank lines left by
// empty sections collapse into one.
func RenderPrompt(text string, data map[string]any) (string, error) {
	out, err := RenderTemplate(text, data)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(blankLines.ReplaceAllString(out, "\n\n")), nil
}

// Strings converts a slice of strings, a slice of arbitrary values or a
// single value to its string items.
func Strings(items any) []string {
	switch v := items.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = fmt.Sprint(item)
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Bullets renders items as a dash list, one per line.
func Bullets(items any) string {
	var sb strings.Builder
	for i, item := range Strings(items) {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String()
}

// Numbered renders items as a list numbered from 1.
func Numbered(items any) string {
	var sb strings.Builder
	for i, item := range Strings(items) {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, item)
	}
	return sb.String()
}

// Indent prefixes every non-empty line of s with n spaces.
func Indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(n int, s string) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
