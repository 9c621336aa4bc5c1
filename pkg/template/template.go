// Package template compiles authored message content and filter values
// against the per-job variable context.
package template

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render compiles a template string against the given data and returns the
// rendered text. An unresolvable variable reference is an error, not an empty
// substitution: silently empty content must never reach a provider.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("content").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderValue renders a template string and coerces the result into the most
// specific scalar type, so filter comparisons can stay typed.
func RenderValue(templateStr string, data any) (any, error) {
	result, err := Render(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// HasPlaceholders reports whether the string contains template actions.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, "{{")
}
