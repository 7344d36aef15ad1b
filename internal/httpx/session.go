package httpx

import "net/http"

type User struct {
	ID   string
	Role string
}

// SessionProvider resolves the authenticated caller. Session issuance lives
// in the auth service; this service only consumes its result.
type SessionProvider interface {
	CurrentUser(r *http.Request) (User, bool)
}

// HeaderSessionProvider trusts identity headers set by the edge proxy after
// it has validated the session.
type HeaderSessionProvider struct{}

func (HeaderSessionProvider) CurrentUser(r *http.Request) (User, bool) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return User{}, false
	}
	return User{ID: id, Role: r.Header.Get("X-User-Role")}, true
}
