package featureflags

import (
	"os"
	"strings"
)

// Enabled reports whether a flag is switched on.
// Flags are read from env as FLAG_<NAME>=true/1/yes/on (case-insensitive); dashes become underscores.
func Enabled(name string) bool {
	return truthy(os.Getenv(EnvKey(name)))
}

// EnvKey returns the environment variable backing a flag
func EnvKey(name string) string {
	return "FLAG_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
