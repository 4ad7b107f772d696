package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/knadh/koanf/v2"
)

// ConfigKeyInfo contains metadata about a known configuration key.
type ConfigKeyInfo struct {
	Key         string      // Full key path, e.g. "auth.providerUrl"
	Description string      // What the key controls
	Type        string      // Type hint: "string", "int", "bool", "duration"
	Default     interface{} // Optional default value
	Secret      bool        // Masked when the config is dumped
}

var (
	registry   = make(map[string]ConfigKeyInfo)
	registryMu sync.RWMutex
)

// RegisterConfigKeys records known configuration keys.
func RegisterConfigKeys(infos ...ConfigKeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, info := range infos {
		registry[info.Key] = info
	}
}

// LookupConfigKey returns metadata for a registered config key.
func LookupConfigKey(key string) (ConfigKeyInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, exists := registry[key]
	return info, exists
}

// AllRegisteredKeys returns all registered config keys sorted alphabetically.
func AllRegisteredKeys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadDefaults sets the registered default for every key that k does not
// already hold.
func LoadDefaults(k *koanf.Koanf) error {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for key, info := range registry {
		if info.Default == nil || k.Exists(key) {
			continue
		}
		if err := k.Set(key, info.Default); err != nil {
			return err
		}
	}
	return nil
}

// Redacted returns all values in k, with secret keys masked so that only the
// first four characters remain.
func Redacted(k *koanf.Koanf) map[string]interface{} {
	out := map[string]interface{}{}
	for _, key := range k.Keys() {
		v := k.Get(key)
		if info, ok := LookupConfigKey(key); ok && info.Secret {
			v = Mask(k.String(key))
		}
		out[key] = v
	}
	return out
}

// Mask hides all but the first four characters of a secret.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// FindSimilarKeys finds registered keys that look like a typo of key. Up to
// maxResults keys are returned, most similar first. Keys within an edit
// distance of 3 qualify, and keys sharing the same parent get a one point
// bonus.
func FindSimilarKeys(key string, maxResults int) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	type scored struct {
		key   string
		score int
	}

	var candidates []scored
	keyPrefix := getPrefix(key)
	for registeredKey := range registry {
		if registeredKey == key {
			continue
		}
		score := levenshtein.ComputeDistance(key, registeredKey)
		if keyPrefix != "" && keyPrefix == getPrefix(registeredKey) && score > 0 {
			score--
		}
		if score <= 3 {
			candidates = append(candidates, scored{registeredKey, score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].score < candidates[j].score
	})

	result := make([]string, 0, maxResults)
	for i := 0; i < len(candidates) && i < maxResults; i++ {
		result = append(result, candidates[i].key)
	}
	return result
}

// getPrefix returns the parent of a hierarchical key, "auth" for
// "auth.providerUrl".
func getPrefix(key string) string {
	lastDot := strings.LastIndex(key, ".")
	if lastDot == -1 {
		return ""
	}
	return key[:lastDot]
}
