package util

import (
	"os"
	"strings"
)

// EnvOr returns the first non-blank value among the named environment
// variables, or def.
func EnvOr(def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}
