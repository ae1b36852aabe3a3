package listings

import "github.com/google/uuid"

// IdentityProvider exposes the identity of the signed-in user.
type IdentityProvider interface {
	// CurrentUserID returns false when nobody is signed in.
	CurrentUserID() (uuid.UUID, bool)
}

// Navigator receives route-change commands.
type Navigator interface {
	Navigate(path string)
}

// Notifier receives user-facing toast messages.
type Notifier interface {
	Success(message string)
	Info(message string)
	Error(message string)
}

// Session bundles the per-request collaborators of the listing flows.
type Session struct {
	Identity IdentityProvider
	Nav      Navigator
	Notify   Notifier
}

func (s Session) userID() (uuid.UUID, bool) {
	if s.Identity == nil {
		return uuid.Nil, false
	}
	return s.Identity.CurrentUserID()
}

func (s Session) navigate(path string) {
	if s.Nav != nil {
		s.Nav.Navigate(path)
	}
}

func (s Session) success(msg string) {
	if s.Notify != nil {
		s.Notify.Success(msg)
	}
}

func (s Session) info(msg string) {
	if s.Notify != nil {
		s.Notify.Info(msg)
	}
}

func (s Session) error(msg string) {
	if s.Notify != nil {
		s.Notify.Error(msg)
	}
}

// StaticIdentity is an IdentityProvider for a known user id.
type StaticIdentity uuid.UUID

func (s StaticIdentity) CurrentUserID() (uuid.UUID, bool) {
	id := uuid.UUID(s)
	return id, id != uuid.Nil
}
