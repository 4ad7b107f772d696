package libtask

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, LoadConfig(k, t.TempDir()))

	s := LoadSettings(k)
	assert.Equal(t, "authenticated", s.Auth.Audience)
	assert.Equal(t, 10*time.Minute, s.Auth.JWKSCacheTTL)
	assert.Equal(t, 10*time.Second, s.Auth.JWKSTimeout)
	assert.Equal(t, 15*time.Second, s.Auth.RoleLookupTimeout)
	assert.Equal(t, "rest", s.Profiles.Backend)
	assert.Equal(t, "profiles", s.Profiles.Table)
	assert.Equal(t, 8000, s.Server.Port)
	assert.False(t, s.Server.DebugConfig)
	assert.Equal(t, "dev", s.Logging.Format)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`
auth:
  providerUrl: https://file.supabase.co/
  audience: file-aud
server:
  port: 9001
`), 0o600))

	t.Setenv("SUPABASE_ANON_KEY", "anon-from-legacy")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("LT__AUTH__AUDIENCE", "env-aud")
	t.Setenv("LT__AUTH__JWKS_CACHE_TTL", "1m")

	k := koanf.New(".")
	require.NoError(t, LoadConfig(k, dir))
	s := LoadSettings(k)

	assert.Equal(t, "https://file.supabase.co", s.Auth.ProviderURL, "trailing slash is trimmed")
	assert.Equal(t, "anon-from-legacy", s.Auth.AnonKey)
	assert.Equal(t, "env-aud", s.Auth.Audience, "prefixed env wins over file")
	assert.Equal(t, time.Minute, s.Auth.JWKSCacheTTL)
	assert.Equal(t, 9001, s.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, s.Server.CORSOrigins)
}

func TestValidateConfig(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, LoadConfig(k, t.TempDir()))
	assert.Equal(t, "", ValidateConfig(k))

	require.NoError(t, k.Set("auth.audiance", "x"))
	assert.Contains(t, ValidateConfig(k), "Did you mean 'auth.audience'?")
}

func TestRedactedConfig(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Set("auth.anonKey", "supersecretvalue"))
	out := RedactedConfig(k)
	assert.Equal(t, "supe****", out["auth.anonKey"])
}
