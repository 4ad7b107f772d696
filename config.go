// Package libtask holds process-wide configuration for the libtask auth
// service. Components never read configuration themselves; cmd/libtaskd
// builds a Settings value once at startup and passes the relevant parts down.
package libtask

import (
	"strings"
	"time"

	"github.com/dpup/libtask/internal/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Filename of the standard configuration file.
const ConfigFile = "libtask.yaml"

// EnvPrefix marks environment variables that map onto config keys.
const EnvPrefix = "LT__"

// ConfigKeyInfo contains metadata about a known configuration key.
type ConfigKeyInfo = config.ConfigKeyInfo

// Config is a global koanf instance used to access application level
// configuration options.
//
// Sources, later ones override earlier ones:
//  1. Registered defaults
//  2. libtask.yaml, found in the working directory or any parent
//  3. Legacy environment variables (SUPABASE_URL, DATABASE_URL, ...)
//  4. Environment variables with the LT__ prefix
//  5. Anything loaded with LoadConfigFile or LoadConfigDefaults
//
// Environment variable transformation:
//   - LT__SERVER__PORT → server.port
//   - LT__AUTH__PROVIDER_URL → auth.providerUrl
var Config = koanf.New(".")

// legacyEnv maps the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"SUPABASE_URL":      "auth.providerUrl",
	"SUPABASE_ANON_KEY": "auth.anonKey",
	"JWT_ISSUER":        "auth.issuer",
	"JWT_AUDIENCE":      "auth.audience",
	"DATABASE_URL":      "profiles.databaseUrl",
	"CORS_ORIGINS":      "server.corsOrigins",
}

func init() {
	registerConfigKeys()
	if err := LoadConfig(Config, "."); err != nil {
		panic("error loading config: " + err.Error())
	}
}

// LoadConfig populates k from the standard sources, searching for the config
// file from dir upwards.
func LoadConfig(k *koanf.Koanf, dir string) error {
	if cfg := config.SearchForConfig(ConfigFile, dir); cfg != "" {
		if err := k.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			return err
		}
	}
	if err := k.Load(env.Provider("", ".", config.AliasTransformer(legacyEnv)), nil); err != nil {
		return err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", config.EnvTransformer(EnvPrefix)), nil); err != nil {
		return err
	}
	return config.LoadDefaults(k)
}

// LoadConfigFile loads additional configuration from a YAML file into the
// global Config instance.
func LoadConfigFile(path string) error {
	return Config.Load(file.Provider(path), yaml.Parser())
}

// LoadConfigDefaults loads values into the global Config instance, overriding
// what is already there. Mostly useful in tests.
func LoadConfigDefaults(values map[string]interface{}) error {
	return Config.Load(confmap.Provider(values, "."), nil)
}

// ValidateConfig returns a printable warning for every unknown key in k, or
// an empty string.
func ValidateConfig(k *koanf.Koanf) string {
	return config.FormatValidationWarnings(config.ValidateConfigKeys(k))
}

// RedactedConfig returns every loaded value with secrets masked.
func RedactedConfig(k *koanf.Koanf) map[string]interface{} {
	return config.Redacted(k)
}

// Settings is the typed view of the configuration.
type Settings struct {
	Name     string
	Auth     AuthSettings
	Profiles ProfileSettings
	Server   ServerSettings
	Logging  LoggingSettings
}

// AuthSettings configures token verification and role lookup.
type AuthSettings struct {
	ProviderURL       string
	AnonKey           string
	Issuer            string
	Audience          string
	JWKSCacheTTL      time.Duration
	JWKSTimeout       time.Duration
	RoleLookupTimeout time.Duration
	Leeway            time.Duration
}

// ProfileSettings selects and configures the backing profile store.
type ProfileSettings struct {
	Backend        string
	Table          string
	DatabaseDriver string
	DatabaseURL    string
}

// ServerSettings configures the HTTP and gRPC listener.
type ServerSettings struct {
	Host        string
	Port        int
	CORSOrigins []string
	DebugConfig bool
	CertFile    string
	KeyFile     string
}

// LoggingSettings configures log output.
type LoggingSettings struct {
	Format string
}

// LoadSettings reads a Settings value from k.
func LoadSettings(k *koanf.Koanf) Settings {
	return Settings{
		Name: k.String("name"),
		Auth: AuthSettings{
			ProviderURL:       strings.TrimRight(k.String("auth.providerUrl"), "/"),
			AnonKey:           k.String("auth.anonKey"),
			Issuer:            k.String("auth.issuer"),
			Audience:          k.String("auth.audience"),
			JWKSCacheTTL:      k.Duration("auth.jwksCacheTtl"),
			JWKSTimeout:       k.Duration("auth.jwksTimeout"),
			RoleLookupTimeout: k.Duration("auth.roleLookupTimeout"),
			Leeway:            k.Duration("auth.leeway"),
		},
		Profiles: ProfileSettings{
			Backend:        k.String("profiles.backend"),
			Table:          k.String("profiles.table"),
			DatabaseDriver: k.String("profiles.databaseDriver"),
			DatabaseURL:    k.String("profiles.databaseUrl"),
		},
		Server: ServerSettings{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: stringList(k, "server.corsOrigins"),
			DebugConfig: k.Bool("server.debugConfig"),
			CertFile:    k.String("server.tls.certFile"),
			KeyFile:     k.String("server.tls.keyFile"),
		},
		Logging: LoggingSettings{
			Format: k.String("logging.format"),
		},
	}
}

// stringList reads a list value. Environment variables arrive as a single
// comma separated string, YAML gives a real list.
func stringList(k *koanf.Koanf, key string) []string {
	in := k.Strings(key)
	if s, ok := k.Get(key).(string); ok {
		in = []string{s}
	}
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func registerConfigKeys() {
	config.RegisterConfigKeys(
		ConfigKeyInfo{
			Key:         "name",
			Description: "User-facing name that identifies the service",
			Type:        "string",
			Default:     "libtask",
		},

		// Identity provider and token verification.
		ConfigKeyInfo{
			Key:         "auth.providerUrl",
			Description: "Base URL of the identity provider, e.g. https://xyz.supabase.co",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "auth.anonKey",
			Description: "Public API key sent as the apikey header to the provider",
			Type:        "string",
			Secret:      true,
		},
		ConfigKeyInfo{
			Key:         "auth.issuer",
			Description: "Expected token issuer, derived from auth.providerUrl when empty",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "auth.audience",
			Description: "Expected token audience",
			Type:        "string",
			Default:     "authenticated",
		},
		ConfigKeyInfo{
			Key:         "auth.jwksCacheTtl",
			Description: "How long a fetched key set is trusted before it is refetched",
			Type:        "duration",
			Default:     "10m",
		},
		ConfigKeyInfo{
			Key:         "auth.jwksTimeout",
			Description: "Timeout for fetching the key set",
			Type:        "duration",
			Default:     "10s",
		},
		ConfigKeyInfo{
			Key:         "auth.roleLookupTimeout",
			Description: "Timeout for the backing role lookup",
			Type:        "duration",
			Default:     "15s",
		},
		ConfigKeyInfo{
			Key:         "auth.leeway",
			Description: "Clock skew tolerated when checking exp, nbf and iat",
			Type:        "duration",
			Default:     "0s",
		},

		// Backing profile store.
		ConfigKeyInfo{
			Key:         "profiles.backend",
			Description: "Where roles are looked up: rest or sql",
			Type:        "string",
			Default:     "rest",
		},
		ConfigKeyInfo{
			Key:         "profiles.table",
			Description: "Table, or REST resource, holding user profiles",
			Type:        "string",
			Default:     "profiles",
		},
		ConfigKeyInfo{
			Key:         "profiles.databaseDriver",
			Description: "database/sql driver used by the sql backend: postgres or sqlite3",
			Type:        "string",
			Default:     "postgres",
		},
		ConfigKeyInfo{
			Key:         "profiles.databaseUrl",
			Description: "Connection string used by the sql backend",
			Type:        "string",
			Secret:      true,
		},

		// Server.
		ConfigKeyInfo{
			Key:         "server.host",
			Description: "Host to bind the server to",
			Type:        "string",
			Default:     "localhost",
		},
		ConfigKeyInfo{
			Key:         "server.port",
			Description: "Port to bind the server to",
			Type:        "int",
			Default:     8000,
		},
		ConfigKeyInfo{
			Key:         "server.corsOrigins",
			Description: "Origins allowed to make credentialed cross-origin requests",
			Type:        "[]string",
		},
		ConfigKeyInfo{
			Key:         "server.debugConfig",
			Description: "Expose the redacted configuration at /debug/config",
			Type:        "bool",
			Default:     false,
		},
		ConfigKeyInfo{
			Key:         "server.tls.certFile",
			Description: "Path to TLS certificate file",
			Type:        "string",
		},
		ConfigKeyInfo{
			Key:         "server.tls.keyFile",
			Description: "Path to TLS key file",
			Type:        "string",
		},

		ConfigKeyInfo{
			Key:         "logging.format",
			Description: "Log output: dev or json",
			Type:        "string",
			Default:     "dev",
		},
	)
}
