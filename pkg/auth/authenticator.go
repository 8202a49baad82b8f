package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Account is a configured administrator.
type Account struct {
	Username     string
	Email        string
	PasswordHash string
}

// Authenticator checks admin credentials against the configured accounts.
type Authenticator struct {
	accounts []Account
	hasher   *PasswordHasher
	// dummyHash is verified when the username is unknown so both paths cost the same.
	dummyHash string
	log       *zap.SugaredLogger
}

func NewAuthenticator(accounts []Account, hasher *PasswordHasher, log *zap.SugaredLogger) *Authenticator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultHasherConfig())
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warnw("Failed to prepare dummy password hash", "error", err)
	}
	return &Authenticator{accounts: accounts, hasher: hasher, dummyHash: dummy, log: log.Named("auth")}
}

// Login returns the admin user for valid credentials and ErrInvalidCredentials otherwise.
func (a *Authenticator) Login(_ context.Context, username, password string) (User, error) {
	var match *Account
	for i := range a.accounts {
		if subtle.ConstantTimeCompare([]byte(a.accounts[i].Username), []byte(username)) == 1 {
			match = &a.accounts[i]
		}
	}

	if match == nil {
		if a.dummyHash != "" {
			_, _ = a.hasher.Verify(password, a.dummyHash)
		}
		return User{}, ErrInvalidCredentials
	}

	ok, err := a.hasher.Verify(password, match.PasswordHash)
	if err != nil {
		a.log.Errorw("Stored admin password hash is unusable", "username", match.Username, "error", err)
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return User{
		ID:       UserID(match.Username),
		Username: match.Username,
		Email:    match.Email,
		Role:     RoleAdmin,
	}, nil
}

// UserID derives a stable id for a configured account.
func UserID(username string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("sitegate:admin:"+username)).String()
}
