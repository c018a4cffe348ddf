// Package tmpl renders Go templates used to build links.
package tmpl

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

// queryEscape escapes s for a query value. Spaces become %20 rather than '+'
// so the text survives hand-off targets that do not decode form encoding.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

var funcs = template.FuncMap{
	"uriq": queryEscape,
	"urip": url.PathEscape,
	"trim": strings.TrimSpace,
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - uriq: escape a string for use as a query value
//   - urip: escape a string for use as a path segment
//   - trim: strip leading and trailing whitespace
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
