// Package server hosts the HTTP routes and gRPC services of libtask on a
// single port. gRPC requests are recognised by content type and handed to
// the gRPC server, everything else goes to the HTTP mux.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/dpup/libtask/logging"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// ShutdownTimeout bounds how long in-flight requests get to drain.
const ShutdownTimeout = 5 * time.Second

// Server wraps an HTTP server and a gRPC server sharing one listener.
//
// Usage:
//
//	s := server.New(server.WithAuthenticator(a), server.WithProfileStore(store))
//	s.Start()
type Server struct {
	host     string
	port     int
	certFile string
	keyFile  string

	// Origins allowed cross-origin access, applied ahead of route matching
	// so preflights reach every path.
	corsOrigins []string

	// Context handed to every request, carries the root logger.
	baseContext context.Context

	httpServer *http.Server
	httpMux    *http.ServeMux
	grpcServer *grpc.Server
	health     *health.Server
}

// ServiceRegistrar returns the gRPC registrar for service implementations.
func (s *Server) ServiceRegistrar() grpc.ServiceRegistrar {
	return s.grpcServer
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, fmt.Sprint(s.port))
}

// Handler returns the combined gRPC and HTTP handler, without the h2c
// wrapper. Useful for tests.
func (s *Server) Handler() http.Handler {
	grpcHandler := s.grpcServer
	httpHandler := gziphandler.GzipHandler(cors(s.corsOrigins, s.httpMux))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
			grpcHandler.ServeHTTP(w, r)
		} else {
			httpHandler.ServeHTTP(w, r)
		}
	})
}

// Start serves requests until SIGINT or SIGTERM, then drains connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("server: failed to listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(s.baseContext, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logging.Info(s.baseContext, "server: shutdown triggered")
		done <- s.Shutdown()
	}()

	err = s.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	stop()
	return <-done
}

// Serve accepts connections on ln. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.health.Resume()
	if s.isSecure() {
		logging.Infof(s.baseContext, "server: listening on https://%s", ln.Addr())
		return s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	}
	logging.Infof(s.baseContext, "server: listening on http://%s", ln.Addr())
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server as not serving and drains connections.
func (s *Server) Shutdown() error {
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseContext), ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		logging.Errorw(s.baseContext, "server: shutdown error", "error", err)
	} else {
		logging.Info(s.baseContext, "server: connections drained")
	}
	return err
}

func (s *Server) initHTTPServer() {
	s.httpServer = &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.baseContext
		},
	}
	if s.isSecure() {
		s.httpServer.Handler = s.Handler()
		s.httpServer.TLSConfig = safeTLSConfig()
	} else {
		s.httpServer.Handler = h2c.NewHandler(s.Handler(), &http2.Server{})
	}
}

func (s *Server) isSecure() bool {
	return s.certFile != "" && s.keyFile != ""
}

// TLS1.2 min and support for HTTP2.
func safeTLSConfig() *tls.Config {
	return &tls.Config{
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}
}
