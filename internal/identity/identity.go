// Package identity is the narrow contract to the host application's
// auth layer. The chat core only needs a stable current-user id; when
// none is available it refuses to send or subscribe.
package identity

// User is the authenticated marketplace participant.
type User struct {
	ID string
}

// Provider resolves the current user. Implementations are expected to
// be cheap; the service calls this on every operation.
type Provider interface {
	CurrentUser() (User, bool)
}

// Static is a fixed-identity provider, used by hosts that resolve the
// session once and by tests.
type Static struct {
	user User
}

// NewStatic returns a provider always reporting the given user id. An
// empty id reports no user.
func NewStatic(id string) *Static {
	return &Static{user: User{ID: id}}
}

// CurrentUser implements Provider.
func (s *Static) CurrentUser() (User, bool) {
	if s == nil || s.user.ID == "" {
		return User{}, false
	}
	return s.user, true
}
