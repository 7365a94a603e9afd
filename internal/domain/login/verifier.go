package login

import (
	"context"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/auth"
)

// UserAccount is the stored account record the verifier checks against.
type UserAccount struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	Active       bool
}

// UserDirectory looks up accounts by username or email.
type UserDirectory interface {
	FindByLogin(ctx context.Context, usernameOrEmail string) (*UserAccount, error)
}

// DirectoryVerifier is the bcrypt-backed CredentialVerifier over a user
// directory.
type DirectoryVerifier struct {
	dir UserDirectory
}

// NewDirectoryVerifier creates a verifier over the given directory.
func NewDirectoryVerifier(dir UserDirectory) *DirectoryVerifier {
	return &DirectoryVerifier{dir: dir}
}

// Verify checks the password against the stored hash. Unknown account, wrong
// password, and deactivated account all return the same unauthorized error.
func (v *DirectoryVerifier) Verify(ctx context.Context, usernameOrEmail, password string) (*Identity, error) {
	account, err := v.dir.FindByLogin(ctx, usernameOrEmail)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, depErr(err)
	}
	if !account.Active {
		return nil, errInvalidCredentials()
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return nil, errInvalidCredentials()
	}

	return &Identity{
		UserID: account.ID,
		Email:  account.Email,
		Role:   account.Role,
	}, nil
}
