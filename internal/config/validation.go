package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

// ValidationWarning describes an unknown, possibly misspelled, config key.
type ValidationWarning struct {
	Key         string
	Suggestions []string
}

func (w ValidationWarning) String() string {
	msg := fmt.Sprintf("'%s' is not a known config key", w.Key)
	switch len(w.Suggestions) {
	case 0:
	case 1:
		msg += fmt.Sprintf(". Did you mean '%s'?", w.Suggestions[0])
	default:
		msg += ". Did you mean one of these?"
		for _, suggestion := range w.Suggestions {
			msg += "\n    - " + suggestion
		}
	}
	return msg
}

// ValidateConfigKeys compares every loaded key against the registry. Keys
// nested under a registered key are accepted.
func ValidateConfigKeys(k *koanf.Koanf) []ValidationWarning {
	var warnings []ValidationWarning
	for _, key := range k.Keys() {
		if _, exists := LookupConfigKey(key); exists || hasRegisteredPrefix(key) {
			continue
		}
		warnings = append(warnings, ValidationWarning{
			Key:         key,
			Suggestions: FindSimilarKeys(key, 3),
		})
	}
	return warnings
}

func hasRegisteredPrefix(key string) bool {
	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if _, exists := LookupConfigKey(strings.Join(parts[:i], ".")); exists {
			return true
		}
	}
	return false
}

// FormatValidationWarnings renders warnings as a single multi-line message.
func FormatValidationWarnings(warnings []ValidationWarning) string {
	if len(warnings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration warnings detected:\n")
	for _, warning := range warnings {
		for i, line := range strings.Split(warning.String(), "\n") {
			if i == 0 {
				sb.WriteString("  - " + line + "\n")
			} else {
				sb.WriteString("  " + line + "\n")
			}
		}
	}
	return sb.String()
}
