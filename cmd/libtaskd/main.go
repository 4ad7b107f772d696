// Command libtaskd serves the libtask auth endpoints.
//
// Configuration comes from libtask.yaml and the environment, see the libtask
// package for the sources and their precedence.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dpup/libtask"
	"github.com/dpup/libtask/auth"
	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/jwks"
	"github.com/dpup/libtask/logging"
	"github.com/dpup/libtask/profiles"
	"github.com/dpup/libtask/server"
	"google.golang.org/grpc/codes"
)

var errUnknownBackend = errors.NewC("libtaskd: unknown profile backend", codes.InvalidArgument)

func main() {
	settings := libtask.LoadSettings(libtask.Config)
	logger := logging.New(settings.Logging.Format).Named(settings.Name)
	ctx := logging.With(context.Background(), logger)

	if warnings := libtask.ValidateConfig(libtask.Config); warnings != "" {
		logging.Warnw(ctx, warnings)
	}

	s, cleanup, err := newServer(ctx, settings, logger)
	if err != nil {
		logging.Fatalw(ctx, "libtaskd: startup failed", "error", err)
	}
	defer cleanup()

	if err := s.Start(); err != nil {
		logging.Errorw(ctx, "libtaskd: server stopped", "error", err)
		os.Exit(1)
	}
}

// newServer wires every component from settings. The cleanup func releases
// the profile store and must be called once the server has stopped.
func newServer(ctx context.Context, settings libtask.Settings, logger logging.Logger) (*server.Server, func(), error) {
	// One pooled client for the key endpoint and the profile store. Each call
	// also carries its own, usually shorter, context deadline.
	client := &http.Client{Timeout: max(settings.Auth.JWKSTimeout, settings.Auth.RoleLookupTimeout)}

	keys := jwks.New(jwks.URL(settings.Auth.ProviderURL),
		jwks.WithTTL(settings.Auth.JWKSCacheTTL),
		jwks.WithTimeout(settings.Auth.JWKSTimeout),
		jwks.WithHTTPClient(client),
	)

	verifier, err := auth.NewVerifier(keys,
		auth.WithProviderURL(settings.Auth.ProviderURL),
		auth.WithIssuer(settings.Auth.Issuer),
		auth.WithAudience(settings.Auth.Audience),
		auth.WithLeeway(settings.Auth.Leeway),
	)
	if err != nil {
		return nil, nil, err
	}

	store, cleanup, err := openStore(ctx, settings, client)
	if err != nil {
		return nil, nil, err
	}

	authn := auth.NewAuthenticator(verifier, auth.NewRoleResolver(store,
		auth.WithLookupTimeout(settings.Auth.RoleLookupTimeout),
	))

	opts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithHost(settings.Server.Host),
		server.WithPort(settings.Server.Port),
		server.WithCORSAllowedOrigins(settings.Server.CORSOrigins...),
		server.WithAuthenticator(authn),
		server.WithProfileStore(store),
	}
	if settings.Server.CertFile != "" {
		opts = append(opts, server.WithTLS(settings.Server.CertFile, settings.Server.KeyFile))
	}
	if settings.Server.DebugConfig {
		logging.Warnw(ctx, "libtaskd: /debug/config is enabled")
		opts = append(opts, server.WithDebugConfig(func() map[string]any {
			return libtask.RedactedConfig(libtask.Config)
		}))
	}

	logging.Infow(ctx, "libtaskd: configured",
		"auth.issuer", verifier.Issuer(),
		"auth.audience", verifier.Audience(),
		"profiles.backend", settings.Profiles.Backend)

	return server.New(opts...), cleanup, nil
}

func openStore(ctx context.Context, settings libtask.Settings, client *http.Client) (profiles.Store, func(), error) {
	p := settings.Profiles
	switch p.Backend {
	case "rest":
		store, err := profiles.NewRESTStore(settings.Auth.ProviderURL, settings.Auth.AnonKey,
			profiles.WithHTTPClient(client),
			profiles.WithTable(p.Table),
		)
		return store, func() {}, err

	case "sql":
		store, err := profiles.OpenSQLStore(ctx, p.DatabaseDriver, p.DatabaseURL, p.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logging.Errorw(ctx, "libtaskd: closing profile store", "error", err)
			}
		}, nil
	}
	return nil, nil, errors.Mark(errUnknownBackend, 0).Append(fmt.Sprintf("%q, use rest or sql", p.Backend))
}
