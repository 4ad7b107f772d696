package serverutil

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// IncomingMetadata returns the first value of key in the incoming gRPC
// metadata, or "" when absent. Keys are case-insensitive.
func IncomingMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(strings.ToLower(key)); len(v) > 0 {
		return v[0]
	}
	return ""
}

// MetadataFromRequest copies the listed HTTP headers into gRPC metadata and
// attaches it to the request context, so that code shared between HTTP
// handlers and gRPC services can read them the same way.
func MetadataFromRequest(r *http.Request, headers ...string) context.Context {
	md := metadata.MD{}
	for _, h := range headers {
		if v := r.Header.Get(h); v != "" {
			md.Append(strings.ToLower(h), v)
		}
	}
	if existing, ok := metadata.FromIncomingContext(r.Context()); ok {
		md = metadata.Join(existing, md)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}
