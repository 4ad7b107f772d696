package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
)

// SearchForConfig looks for filename in startDir and then in each parent
// directory until it is found or the filesystem root is reached.
func SearchForConfig(filename string, startDir string) string {
	d, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(d, filename)
		if _, err = os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(d)
		if parent == d {
			return ""
		}
		d = parent
	}
}

// EnvTransformer returns a koanf env callback that maps prefixed variables to
// config keys:
//
//	LT__AUTH__PROVIDER_URL    → auth.providerUrl
//	LT__AUTH__JWKS_CACHE_TTL  → auth.jwksCacheTtl
//	LT__PROFILES__DATABASE_URL → profiles.databaseUrl
//
// Double underscores separate path segments, single underscores inside a
// segment become lower camel case.
func EnvTransformer(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		segments := strings.Split(strings.ToLower(s), "__")
		for i, segment := range segments {
			segments[i] = strcase.ToLowerCamel(segment)
		}
		return strings.Join(segments, ".")
	}
}

// AliasTransformer returns a koanf env callback that only accepts the exact
// variable names in aliases and maps them to their config key. Everything
// else is dropped.
func AliasTransformer(aliases map[string]string) func(string) string {
	return func(s string) string {
		return aliases[s]
	}
}
