package logging

import (
	"context"
	"reflect"

	"github.com/dpup/libtask/errors"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

const stackSize = 5

// Interceptor returns a GRPC logging interceptor that scopes a child of root
// to each call. If the incoming context already carries a logger, that one is
// used instead.
func Interceptor(root Logger) grpc.UnaryServerInterceptor {
	return grpc_middleware.ChainUnaryServer(scopingInterceptor(root), grpcLoggingInterceptor, errorInterceptor)
}

// Creates a new logging scope for each request, adding the RPC method name as
// the logger name. This ensures logging.Track works as expected.
func scopingInterceptor(root Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		base := root
		if c, ok := ctx.Value(ctxkey{}).(*ctxkey); ok {
			base = c.logger
		}
		return handler(With(ctx, base.Named(info.FullMethod)), req)
	}
}

// Adds extra error fields to the logging context.
func errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		// Recover from panics, wrap them in an error so we can get a clean stack.
		if r := recover(); r != nil {
			Track(ctx, "error.panic", true)
			err = errors.Wrap(r, 3).WithCode(codes.Internal)
			resp = nil
		}

		if err != nil {
			trackError(ctx, err)
		}
	}()

	resp, err = handler(ctx, req)
	return
}

func trackError(ctx context.Context, err error) {
	Track(ctx, "error.type", reflect.TypeOf(err).String())
	Track(ctx, "error.http_status", errors.HTTPStatusCode(err))

	// Internal cause, never sent to the client.
	Track(ctx, "error.message", err.Error())

	var e *errors.Error
	if errors.As(err, &e) {
		Track(ctx, "error.stack_trace", e.MinimalStack(0, stackSize))
		Track(ctx, "error.original_type", e.TypeName())
	}
}

// Standard interceptor from the GRPC Logging middleware.
var grpcLoggingInterceptor = grpc_logging.UnaryServerInterceptor(grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
	logger := withoutStacktrace(FromContext(ctx))

	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		logger = logger.With(key, fields[i+1])
	}

	switch lvl {
	case grpc_logging.LevelDebug:
		logger.Debug(msg)
	case grpc_logging.LevelInfo:
		logger.Info(msg)
	case grpc_logging.LevelWarn:
		logger.Warn(msg)
	case grpc_logging.LevelError:
		logger.Error(msg)
	default:
		logger.Panicf("unknown log level %v", lvl)
	}
}))
