package auth

import (
	"context"

	"google.golang.org/grpc"
)

// InterceptorOption customizes UnaryServerInterceptor.
type InterceptorOption func(*interceptorOptions)

type interceptorOptions struct {
	public map[string]bool
	guards map[string]Guard
}

// WithPublicMethods lists full method names that skip authentication, e.g.
// "/grpc.health.v1.Health/Check".
func WithPublicMethods(methods ...string) InterceptorOption {
	return func(o *interceptorOptions) {
		for _, m := range methods {
			o.public[m] = true
		}
	}
}

// WithMethodGuard applies guard to a full method name after authentication.
func WithMethodGuard(method string, guard Guard) InterceptorOption {
	return func(o *interceptorOptions) {
		o.guards[method] = guard
	}
}

// UnaryServerInterceptor authenticates the "authorization" metadata of every
// call not marked public and attaches the identity to the context. The
// errors returned implement GRPCStatus, which exposes only the public
// message to the client while the logging interceptor still sees the cause.
func (a *Authenticator) UnaryServerInterceptor(opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	o := &interceptorOptions{
		public: map[string]bool{},
		guards: map[string]Guard{},
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if o.public[info.FullMethod] {
			return handler(ctx, req)
		}

		id, err := a.GetCurrentIdentity(ctx)
		if err != nil {
			return nil, err
		}
		if guard, ok := o.guards[info.FullMethod]; ok {
			if _, err := guard(id); err != nil {
				return nil, err
			}
		}
		return handler(WithIdentity(ctx, id), req)
	}
}
