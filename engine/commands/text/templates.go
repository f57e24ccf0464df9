// Package text provides text formatting utilities for CLI commands.
package text

import (
	"strings"
)

// Indentation is the standard indentation for CLI help text.
const Indentation = `  `

// LongDesc trims a command's long description and strips the source indentation of each line.
func LongDesc(s string) string {
	return dedent(s, "")
}

// Examples trims a command's examples and indents every line.
func Examples(s string) string {
	return dedent(s, Indentation)
}

func dedent(s, prefix string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			lines[i] = ""
			continue
		}
		lines[i] = prefix + trimmed
	}

	return strings.Join(lines, "\n")
}
