// Package identity turns request headers into a caller identity. Token
// verification happens upstream; by the time a request arrives here an
// authorizer has either vouched for X-User-Id or the caller is a guest.
package identity

import (
	"errors"
	"strings"
	"unicode/utf8"

	"shopping-agent/internal/domain"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderUserID        = "X-User-Id"
	HeaderAnonymousID   = "X-Anonymous-Id"

	maxSubjectLen = 128
)

// ErrUnauthenticated means neither a user nor a guest identity was supplied.
var ErrUnauthenticated = errors.New("identity: no valid identity")

// Headers is satisfied by http.Header and by the lowercase header maps of
// Lambda events after normalization.
type Headers interface {
	Get(key string) string
}

// Resolve prefers an authenticated user and falls back to a guest token.
func Resolve(h Headers) (domain.Identity, error) {
	auth := strings.TrimSpace(h.Get(HeaderAuthorization))
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID != "" && hasBearer(auth) {
		if !validSubject(userID) {
			return domain.Identity{}, ErrUnauthenticated
		}
		return domain.Identity{Type: domain.IdentityUser, Subject: userID}, nil
	}

	anonID := strings.TrimSpace(h.Get(HeaderAnonymousID))
	if anonID != "" && validSubject(anonID) {
		return domain.Identity{Type: domain.IdentityAnon, Subject: anonID}, nil
	}
	return domain.Identity{}, ErrUnauthenticated
}

func hasBearer(v string) bool {
	scheme, token, ok := strings.Cut(v, " ")
	return ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != ""
}

func validSubject(s string) bool {
	if !utf8.ValidString(s) || len(s) > maxSubjectLen {
		return false
	}
	for _, r := range s {
		if r < 0x21 || r == 0x7f {
			return false
		}
	}
	return true
}
