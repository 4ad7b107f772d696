package config

import (
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigKeys(t *testing.T) {
	withRegistry(t,
		ConfigKeyInfo{Key: "auth.providerUrl"},
		ConfigKeyInfo{Key: "auth.audience"},
		ConfigKeyInfo{Key: "server.port"},
		ConfigKeyInfo{Key: "myapp"},
	)

	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]interface{}{
		"auth.providerUrl": "https://example.supabase.co",
		"auth.audiance":    "authenticated",
		"server.port":      8000,
		"myapp.custom":     "ok",
	}, "."), nil))

	warnings := ValidateConfigKeys(k)
	require.Len(t, warnings, 1)
	assert.Equal(t, "auth.audiance", warnings[0].Key)
	assert.Equal(t, []string{"auth.audience"}, warnings[0].Suggestions)
}

func TestValidationWarningString(t *testing.T) {
	assert.Contains(t,
		ValidationWarning{Key: "auth.audiance", Suggestions: []string{"auth.audience"}}.String(),
		"Did you mean 'auth.audience'?")
	assert.Contains(t,
		ValidationWarning{Key: "server.prt", Suggestions: []string{"server.port", "server.host"}}.String(),
		"Did you mean one of these?")
	assert.Equal(t,
		"'unknown.key' is not a known config key",
		ValidationWarning{Key: "unknown.key"}.String())
}

func TestFormatValidationWarnings(t *testing.T) {
	assert.Equal(t, "", FormatValidationWarnings(nil))

	out := FormatValidationWarnings([]ValidationWarning{
		{Key: "server.prt", Suggestions: []string{"server.port", "server.host"}},
	})
	assert.Contains(t, out, "  - 'server.prt' is not a known config key")
	assert.Contains(t, out, "      - server.port")
}
