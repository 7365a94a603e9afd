package login

import (
	"context"
	"log"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/session"
	"github.com/example/commerce-core/internal/event"
)

// Identity is the verified identity returned by the credential verifier.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// CredentialVerifier validates a username-or-email/password pair. Any
// failure, including an unknown account, surfaces to clients as the same
// generic unauthorized error.
type CredentialVerifier interface {
	Verify(ctx context.Context, usernameOrEmail, password string) (*Identity, error)
}

// TokenIssuer mints a bearer credential bound to a verified identity and
// session, valid for ttl.
type TokenIssuer interface {
	Issue(userID, email, role, sessionID string, ttl time.Duration) (token string, expiresAt time.Time, err error)
}

// UserRecords updates identity-level login bookkeeping on the user record.
type UserRecords interface {
	// UpdateLastLogin stamps the user's last-login time. Login treats this as
	// a hard dependency: if it fails, the login fails.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// MarkLoggedOut records the identity-level logout. This is the
	// authoritative part of Logout.
	MarkLoggedOut(ctx context.Context, userID string, at time.Time) error
}

// Result is a successful login.
type Result struct {
	Token          string    `json:"token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	SessionID      string    `json:"session_id"`
	Identity       Identity  `json:"-"`
}

// Orchestrator coordinates credential verification, session creation, and
// token issuance into one login operation that is atomic from the caller's
// perspective.
type Orchestrator struct {
	verifier  CredentialVerifier
	sessions  *session.Service
	issuer    TokenIssuer
	users     UserRecords
	publisher event.Publisher
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewOrchestrator wires the login flow. publisher may be nil.
func NewOrchestrator(verifier CredentialVerifier, sessions *session.Service, issuer TokenIssuer, users UserRecords, publisher event.Publisher, tokenTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		verifier:  verifier,
		sessions:  sessions,
		issuer:    issuer,
		users:     users,
		publisher: publisher,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// errInvalidCredentials is the single failure returned for any credential
// mismatch. The message is identical whether the account does not exist or
// the password is wrong, so callers cannot enumerate users.
func errInvalidCredentials() error {
	return apperr.New(apperr.KindUnauthorized, "invalid credentials")
}

// Login verifies credentials, creates a session, stamps the user's
// last-login time, and mints a token. Each step short-circuits on failure;
// no partial login state survives a failed call.
func (o *Orchestrator) Login(ctx context.Context, usernameOrEmail, password, userAgent, ipAddress string) (*Result, error) {
	if usernameOrEmail == "" || password == "" {
		return nil, errInvalidCredentials()
	}

	identity, err := o.verifier.Verify(ctx, usernameOrEmail, password)
	if err != nil {
		if apperr.IsKind(err, apperr.KindDependency) {
			return nil, err
		}
		return nil, errInvalidCredentials()
	}

	sess, err := o.sessions.CreateSession(ctx, identity.UserID, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := o.issuer.Issue(identity.UserID, identity.Email, identity.Role, sess.ID, o.tokenTTL)
	if err != nil {
		o.discardSession(ctx, sess.ID)
		return nil, apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
	}

	// Last-login is a hard dependency of a successful login, not best-effort.
	if err := o.users.UpdateLastLogin(ctx, identity.UserID, o.now()); err != nil {
		o.discardSession(ctx, sess.ID)
		return nil, depErr(err)
	}

	o.publish(ctx, identity.UserID, event.New(event.TypeUserLoggedIn, event.UserLoggedIn{
		UserID:    identity.UserID,
		SessionID: sess.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		LoggedAt:  o.now(),
	}))

	return &Result{
		Token:          token,
		TokenExpiresAt: expiresAt,
		SessionID:      sess.ID,
		Identity:       *identity,
	}, nil
}

// Logout records the identity-level logout, which is authoritative, and
// best-effort invalidates the specific session when one is supplied. A
// session invalidation failure is reported in the log but does not fail the
// logout.
func (o *Orchestrator) Logout(ctx context.Context, identity Identity, sessionID string) error {
	if err := o.users.MarkLoggedOut(ctx, identity.UserID, o.now()); err != nil {
		return depErr(err)
	}

	if sessionID != "" {
		if _, err := o.sessions.LogoutSession(ctx, sessionID); err != nil {
			log.Printf("[Login] Failed to invalidate session %s for user %s: %v", sessionID, identity.UserID, err)
		}
	}

	o.publish(ctx, identity.UserID, event.New(event.TypeUserLoggedOut, event.UserLoggedOut{
		UserID:    identity.UserID,
		SessionID: sessionID,
		LoggedAt:  o.now(),
	}))

	return nil
}

// discardSession marks a just-created session logged out after a later login
// step failed, so no live session survives a failed login.
func (o *Orchestrator) discardSession(ctx context.Context, sessionID string) {
	if _, err := o.sessions.LogoutSession(ctx, sessionID); err != nil {
		log.Printf("[Login] Failed to discard session %s after login failure: %v", sessionID, err)
	}
}

func depErr(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
}

func (o *Orchestrator) publish(ctx context.Context, key string, env event.Envelope) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, key, env); err != nil {
		log.Printf("[Login] Failed to publish %s event for user %s: %v", env.Type, key, err)
	}
}
