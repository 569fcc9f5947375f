package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/ports"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// bcrypt refuses to hash passwords longer than this.
const maxPasswordBytes = 72

// Options groups dependencies for Authority.
type Options struct {
	Users   ports.CredentialStore
	Ledger  ports.RevocationLedger
	Codec   *auth.Codec
	Hasher  user.PasswordHasher
	Events  event.Publisher
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Authority is the only component that authenticates credentials and decides
// whether a bearer token is currently valid. It keeps no mutable session
// state of its own; all of it lives in the credential store and the ledger.
type Authority struct {
	users   ports.CredentialStore
	ledger  ports.RevocationLedger
	codec   *auth.Codec
	hasher  user.PasswordHasher
	events  event.Publisher
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthority(opts Options) *Authority {
	a := &Authority{
		users:   opts.Users,
		ledger:  opts.Ledger,
		codec:   opts.Codec,
		hasher:  opts.Hasher,
		events:  opts.Events,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if a.hasher == nil {
		a.hasher = user.BcryptHasher{Cost: 12}
	}
	if a.events == nil {
		a.events = event.NopPublisher{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop().Sugar()
	}
	return a
}

// LoginResult is a freshly issued session together with the sanitized account.
type LoginResult struct {
	Token auth.IssuedToken
	User  entity.View
}

// Login authenticates email and password. An unknown email and a wrong
// password fail identically with InvalidCredentials.
func (a *Authority) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	const op = "session.Login"
	defer func() { a.record("login", err) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, auth.E(op, auth.KindInvalidCredentials, errors.New("missing email or password"))
	}

	u, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// burn the same KDF time as a real comparison
			a.hasher.Verify(a.placeholderHash(), password)
			return nil, auth.E(op, auth.KindInvalidCredentials, err)
		}
		return nil, auth.E(op, auth.KindStoreUnavailable, err)
	}
	if !a.hasher.Verify(u.PasswordHash, password) {
		return nil, auth.E(op, auth.KindInvalidCredentials, errors.New("password mismatch"))
	}

	issued, err := a.codec.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.events.Publish(ctx, event.New(event.KindUserLogin, u.ID, u.Email, u.Role))
	a.logger.Infow("user logged in", "user_id", u.ID, "jti", issued.JTI)
	return &LoginResult{Token: issued, User: u.View()}, nil
}

// Authenticate verifies token and checks it against the revocation ledger.
// If the ledger cannot answer, the token is rejected.
func (a *Authority) Authenticate(ctx context.Context, token string) (id auth.Identity, err error) {
	const op = "session.Authenticate"
	defer func() { a.record("authenticate", err) }()

	id, err = a.codec.Verify(token)
	if err != nil {
		return auth.Identity{}, err
	}
	revoked, err := a.ledger.IsRevoked(ctx, id.JTI)
	if err != nil {
		a.logger.Warnw("revocation check failed, rejecting token", "jti", id.JTI, "err", err)
		return auth.Identity{}, auth.E(op, auth.KindStoreUnavailable, err)
	}
	if revoked {
		a.logger.Infow("revoked token presented", "user_id", id.ID, "jti", id.JTI)
		return auth.Identity{}, auth.E(op, auth.KindRevokedToken, fmt.Errorf("jti %s", id.JTI))
	}
	return id, nil
}

// ChangePasswordInput is a password change request for TargetUserID.
type ChangePasswordInput struct {
	TargetUserID       int64
	CurrentPassword    string
	NewPassword        string
	ConfirmNewPassword string
}

// ChangePassword replaces the target's password. Administrators may change any
// account without the current password; everyone else may only change their own
// and must re-enter the current one. Existing sessions are left untouched.
func (a *Authority) ChangePassword(ctx context.Context, acting auth.Identity, in ChangePasswordInput) (err error) {
	const op = "session.ChangePassword"
	defer func() { a.record("change_password", err) }()

	if !acting.CanActOn(in.TargetUserID) {
		return auth.E(op, auth.KindForbidden, fmt.Errorf("user %d may not modify user %d", acting.ID, in.TargetUserID))
	}
	if in.NewPassword != in.ConfirmNewPassword {
		return auth.E(op, auth.KindPasswordMismatch, errors.New("confirmation does not match"))
	}
	if in.NewPassword == "" {
		return auth.E(op, auth.KindPasswordMismatch, errors.New("new password is empty"))
	}
	if len(in.NewPassword) > maxPasswordBytes {
		return auth.E(op, auth.KindPasswordMismatch, fmt.Errorf("new password exceeds %d bytes", maxPasswordBytes))
	}

	target, err := a.users.FindByID(ctx, in.TargetUserID)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return auth.E(op, auth.KindNotFound, err)
		}
		return auth.E(op, auth.KindStoreUnavailable, err)
	}
	if acting.ID == in.TargetUserID && !a.hasher.Verify(target.PasswordHash, in.CurrentPassword) {
		return auth.E(op, auth.KindInvalidCredentials, errors.New("current password is incorrect"))
	}

	hash, err := a.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}
	if err := a.users.UpdatePassword(ctx, target.ID, hash); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return auth.E(op, auth.KindNotFound, err)
		}
		return auth.E(op, auth.KindStoreUnavailable, err)
	}

	a.events.Publish(ctx, event.New(event.KindUserPasswordChanged, acting.ID, acting.Email, acting.Role))
	a.logger.Infow("password changed", "user_id", target.ID, "by", acting.ID)
	return nil
}

// Logout revokes the identity's token. Logging out twice succeeds.
func (a *Authority) Logout(ctx context.Context, id auth.Identity) (err error) {
	const op = "session.Logout"
	defer func() { a.record("logout", err) }()

	if err := a.ledger.Revoke(ctx, id.JTI, id.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.events.Publish(ctx, event.New(event.KindUserLogout, id.ID, id.Email, id.Role))
	a.logger.Infow("user logged out", "user_id", id.ID, "jti", id.JTI)
	return nil
}

func (a *Authority) placeholderHash() string {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = a.hasher.Hash("placeholder-password")
	})
	return a.dummyHash
}

func (a *Authority) record(op string, err error) {
	if err == nil {
		a.metrics.AuthOutcome(op, "ok")
		return
	}
	a.metrics.AuthOutcome(op, auth.KindOf(err).String())
}
