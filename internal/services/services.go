// package services defines the interfaces to the identity network, its object storage and the social index,
// plus HTTP adapters implementing them.
package services

import (
	"context"

	"github.com/desertthunder/pubkytree/internal/models"
)

// AuthFlowKind selects what the signer is asked to approve.
type AuthFlowKind int

const (
	// SignIn asks an existing identity to grant capabilities.
	SignIn AuthFlowKind = iota
	// SignUp asks the signer to create the identity on the homeserver first.
	SignUp
)

func (k AuthFlowKind) String() string {
	if k == SignUp {
		return "signup"
	}
	return "signin"
}

// IdentityClient starts approval flows and restores exported sessions.
type IdentityClient interface {
	// StartAuthFlow requests capabilities (e.g. "/pub/pubkytree.app/:rw") and returns a pending flow.
	StartAuthFlow(ctx context.Context, capabilities string, kind AuthFlowKind) (AuthFlow, error)

	// RestoreSession rebuilds a session from a value produced by [Session.Export].
	RestoreSession(ctx context.Context, snapshot string) (Session, error)
}

// AuthFlow is a pending approval.
type AuthFlow interface {
	// AuthorizationURL is shown to the user, typically as a QR code.
	AuthorizationURL() string

	// AwaitApproval blocks until the signer approves, the flow fails or ctx ends.
	AwaitApproval(ctx context.Context) (Session, error)

	// Close abandons the flow and releases its relay. A pending AwaitApproval returns an error.
	Close() error
}

// Session is an authenticated handle to one identity's storage.
type Session interface {
	PublicKey() string
	Storage() SessionStorage
	// Export returns an opaque token accepted by [IdentityClient.RestoreSession].
	Export() (string, error)
	Signout(ctx context.Context) error
}

// SessionStorage reads and writes JSON objects in the session owner's namespace.
type SessionStorage interface {
	Exists(ctx context.Context, path string) (bool, error)
	GetJSON(ctx context.Context, path string, v any) error
	PutJSON(ctx context.Context, path string, v any) error
}

// PublicStorage reads JSON objects of any identity by pubky:// address.
type PublicStorage interface {
	GetJSON(ctx context.Context, address string, v any) error
}

// SocialIndex is the read-only social indexer.
type SocialIndex interface {
	// User returns the indexed profile of id, or [shared.ErrProfileNotIndexed].
	User(ctx context.Context, id string) (*models.SocialProfile, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.SocialDetails, error)
	PopularUsers(ctx context.Context, limit int) ([]models.SocialDetails, error)
}
