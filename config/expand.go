package config

import (
	"os"
	"regexp"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// A placeholder whose variable is unset or empty and has no default is left as written.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]

		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return m
	})
}
