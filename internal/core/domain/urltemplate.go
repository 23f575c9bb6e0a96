package domain

import "regexp"

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderTemplate substitutes ${NAME} placeholders in tmpl with values from
// bindings. It returns a TemplateError naming the first placeholder with no
// bound value. Pure string work, no I/O.
func RenderTemplate(tmpl string, bindings map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[2 : len(m)-1]
		value, ok := bindings[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return value
	})
	if missing != "" {
		return "", &TemplateError{Placeholder: missing}
	}
	return out, nil
}
