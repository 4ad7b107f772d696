package server

import (
	"context"
	"net/http"

	"github.com/dpup/libtask/auth"
	"github.com/dpup/libtask/logging"
	"github.com/dpup/libtask/profiles"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health checks are answered without credentials.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// ServerOption customizes the server built by New.
type ServerOption func(*builder)

type builder struct {
	host         string
	port         int
	certFile     string
	keyFile      string
	corsOrigins  []string
	logger       logging.Logger
	authn        *auth.Authenticator
	store        profiles.Store
	debugConfig  func() map[string]any
	handlers     map[string]http.Handler
	interceptors []grpc.UnaryServerInterceptor
	guards       map[string]auth.Guard
}

// New returns a server. Without WithAuthenticator only the public routes are
// mounted.
func New(opts ...ServerOption) *Server {
	b := &builder{
		host:     "localhost",
		port:     8000,
		handlers: map[string]http.Handler{},
		guards:   map[string]auth.Guard{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

func (b *builder) build() *Server {
	logger := b.logger
	if logger == nil {
		logger = logging.NewDevLogger()
	}

	hs := health.NewServer()
	grpcServer := grpc.NewServer(b.buildGRPCOpts(logger)...)
	healthpb.RegisterHealthServer(grpcServer, hs)

	s := &Server{
		baseContext: logging.With(context.Background(), logger),
		host:        b.host,
		port:        b.port,
		certFile:    b.certFile,
		keyFile:     b.keyFile,
		corsOrigins: b.corsOrigins,
		httpMux:     http.NewServeMux(),
		grpcServer:  grpcServer,
		health:      hs,
	}

	r := &routes{authn: b.authn, store: b.store, debugConfig: b.debugConfig}
	for pattern, h := range r.handlers() {
		s.httpMux.Handle(pattern, b.wrapHandler(logger, h))
	}
	for pattern, h := range b.handlers {
		s.httpMux.Handle(pattern, b.wrapHandler(logger, h))
	}
	s.initHTTPServer()
	return s
}

// wrapHandler adds request logging, security headers and CORS around h.
func (b *builder) wrapHandler(logger logging.Logger, h http.Handler) http.Handler {
	secure := b.certFile != "" && b.keyFile != ""
	return logging.Middleware(logger)(securityHeaders(secure, h))
}

func (b *builder) buildGRPCOpts(logger logging.Logger) []grpc.ServerOption {
	interceptors := []grpc.UnaryServerInterceptor{logging.Interceptor(logger)}
	if b.authn != nil {
		authOpts := []auth.InterceptorOption{
			auth.WithPublicMethods(healthCheckMethod),
		}
		for method, guard := range b.guards {
			authOpts = append(authOpts, auth.WithMethodGuard(method, guard))
		}
		interceptors = append(interceptors, b.authn.UnaryServerInterceptor(authOpts...))
	}
	interceptors = append(interceptors, b.interceptors...)
	return []grpc.ServerOption{grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(interceptors...))}
}

// WithHost sets the hostname or IP to listen on.
func WithHost(host string) ServerOption {
	return func(b *builder) {
		b.host = host
	}
}

// WithPort sets the port to listen on.
func WithPort(port int) ServerOption {
	return func(b *builder) {
		b.port = port
	}
}

// WithTLS serves TLS using the given cert. Without it the server speaks
// HTTP/1.1 and h2c.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(b *builder) {
		b.certFile = certFile
		b.keyFile = keyFile
	}
}

// WithCORSAllowedOrigins lists origins allowed to make browser requests.
func WithCORSAllowedOrigins(origins ...string) ServerOption {
	return func(b *builder) {
		b.corsOrigins = append(b.corsOrigins, origins...)
	}
}

// WithLogger sets the root logger. Defaults to a development logger.
func WithLogger(logger logging.Logger) ServerOption {
	return func(b *builder) {
		b.logger = logger
	}
}

// WithAuthenticator enables the authenticated routes and the gRPC auth
// interceptor.
func WithAuthenticator(a *auth.Authenticator) ServerOption {
	return func(b *builder) {
		b.authn = a
	}
}

// WithProfileStore backs /health/store and /staff. The store must implement
// profiles.Pinger and profiles.Lister respectively, otherwise the route
// answers 501.
func WithProfileStore(store profiles.Store) ServerOption {
	return func(b *builder) {
		b.store = store
	}
}

// WithDebugConfig mounts /debug/config, which renders the result of dump.
// The dump must already be redacted.
func WithDebugConfig(dump func() map[string]any) ServerOption {
	return func(b *builder) {
		b.debugConfig = dump
	}
}

// WithHTTPHandler mounts an extra handler on the HTTP mux.
func WithHTTPHandler(pattern string, h http.Handler) ServerOption {
	return func(b *builder) {
		b.handlers[pattern] = h
	}
}

// WithGRPCInterceptor adds an interceptor that runs after authentication.
func WithGRPCInterceptor(interceptor grpc.UnaryServerInterceptor) ServerOption {
	return func(b *builder) {
		b.interceptors = append(b.interceptors, interceptor)
	}
}

// WithGRPCMethodGuard applies guard to a gRPC method, identified by its full
// name.
func WithGRPCMethodGuard(method string, guard auth.Guard) ServerOption {
	return func(b *builder) {
		b.guards[method] = guard
	}
}
