// Package template renders communication templates against lead field
// snapshots. Placeholders use the {{token}} form, e.g. "Hi {{name}}".
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Ktej255/leadflow/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Rendered is the outcome of rendering one template for one lead.
type Rendered struct {
	Subject  string
	Body     string
	HTMLBody string
	// MissingTokens lists placeholders with no value in the snapshot. They
	// render as empty strings; callers decide whether that is acceptable.
	MissingTokens []string
}

// Render substitutes every {{token}} in the template's subject and body
// with the matching lead field. Unknown tokens render empty and are
// reported in MissingTokens rather than failing the send.
func Render(tmpl *models.CommunicationTemplate, fields map[string]any) (*Rendered, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("template is nil")
	}

	if strings.TrimSpace(tmpl.Body) == "" {
		return nil, fmt.Errorf("template %s has an empty body", tmpl.ID)
	}

	missing := make(map[string]struct{})

	subject := substitute(tmpl.Subject, fields, missing)
	body := substitute(tmpl.Body, fields, missing)
	htmlBody := substitute(tmpl.HTMLBody, fields, missing)

	result := &Rendered{Subject: subject, Body: body, HTMLBody: htmlBody}
	for token := range missing {
		result.MissingTokens = append(result.MissingTokens, token)
	}

	return result, nil
}

// Tokens returns the distinct placeholder names used by a template, in
// order of first appearance. Activation validation compares this against
// the template's declared available_tokens.
func Tokens(tmpl *models.CommunicationTemplate) []string {
	seen := make(map[string]struct{})

	var tokens []string

	for _, input := range []string{tmpl.Subject, tmpl.Body, tmpl.HTMLBody} {
		for _, match := range tokenPattern.FindAllStringSubmatch(input, -1) {
			if _, ok := seen[match[1]]; ok {
				continue
			}

			seen[match[1]] = struct{}{}
			tokens = append(tokens, match[1])
		}
	}

	return tokens
}

func substitute(input string, fields map[string]any, missing map[string]struct{}) string {
	return tokenPattern.ReplaceAllStringFunc(input, func(match string) string {
		token := tokenPattern.FindStringSubmatch(match)[1]

		value, ok := fields[token]
		if !ok || value == nil {
			missing[token] = struct{}{}

			return ""
		}

		return fmt.Sprintf("%v", value)
	})
}
