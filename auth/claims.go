package auth

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the verified claims of a provider issued access token.
type TokenClaims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`

	// Provider level role, usually "authenticated". Not an application role.
	Role string `json:"role"`

	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`

	// Raw holds every claim of the decoded payload.
	Raw map[string]any `json:"-"`
}

func (c *TokenClaims) UnmarshalJSON(b []byte) error {
	type plain TokenClaims
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = TokenClaims(p)
	c.Raw = raw
	return nil
}

// lookup walks a path of nested objects in the raw claims.
func (c *TokenClaims) lookup(path ClaimPath) (any, bool) {
	if c == nil || len(path) == 0 {
		return nil, false
	}
	var cur any = c.Raw
	for _, segment := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[segment]; !ok {
			return nil, false
		}
	}
	return cur, true
}
