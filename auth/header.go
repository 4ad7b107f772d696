package auth

import (
	"encoding/base64"
	"strings"

	"github.com/dpup/libtask/errors"
)

// TokenFromHeader extracts the access token from an Authorization header.
//
// Accepted forms are "Bearer <token>", a bare token with no scheme, and
// "Basic base64(<token>:)". The last one is for curl based clients, where the
// token is passed as the username with an empty password.
func TokenFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", unauthenticated("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		switch strings.ToLower(header) {
		case "bearer":
			return "", unauthenticated("empty bearer token")
		case "basic":
			return "", unauthenticated("empty basic credentials")
		}
		return header, nil
	}

	switch strings.ToLower(parts[0]) {
	case "bearer":
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", unauthenticated("empty bearer token")
		}
		return token, nil

	case "basic":
		payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return "", unauthenticated("invalid basic credentials")
		}
		pair := strings.SplitN(string(payload), ":", 2)
		if len(pair) != 2 || pair[0] == "" || pair[1] != "" {
			return "", unauthenticated("basic credentials must be <token>:")
		}
		return pair[0], nil

	default:
		return "", errors.Mark(ErrUnauthenticated, 0).Appendf("unsupported authorization scheme %q", parts[0])
	}
}
