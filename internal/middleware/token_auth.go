package middleware

import (
	"context"
	"fmt"
)

// TenantToken is one configured bearer token's identity, the shape the
// out-of-scope "user authentication/registration" collaborator is expected
// to hand this service (spec: auth is bearer/API-key only, no
// login/registration flow lives here).
type TenantToken struct {
	Token   string
	UserID  string
	IsAdmin bool
}

// StaticTokenAuth validates bearer tokens against a fixed, pre-loaded table
// of tenant tokens, following APIKeyAuth's validKeys-map idiom in security.go. It
// satisfies both AuthService (HTTP) and the Live-Log Subscriber's
// TokenValidator, since both transports authenticate the same way.
type StaticTokenAuth struct {
	byToken map[string]TenantToken
}

func NewStaticTokenAuth(tokens []TenantToken) *StaticTokenAuth {
	byToken := make(map[string]TenantToken, len(tokens))
	for _, t := range tokens {
		byToken[t.Token] = t
	}
	return &StaticTokenAuth{byToken: byToken}
}

// ValidateToken implements AuthService and the WS TokenValidator contract.
func (a *StaticTokenAuth) ValidateToken(_ context.Context, token string) (*UserInfo, error) {
	entry, ok := a.byToken[token]
	if !ok {
		return nil, fmt.Errorf("token auth: unknown or expired token")
	}
	roles := []string{"owner"}
	if entry.IsAdmin {
		roles = append(roles, "admin")
	}
	return &UserInfo{ID: entry.UserID, Roles: roles}, nil
}
