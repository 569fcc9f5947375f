package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mocks"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var testHasher = user.BcryptHasher{Cost: bcrypt.MinCost}

type fixture struct {
	authority *Authority
	users     *mocks.MemoryCredentialStore
	revoked   *mocks.MemoryRevocationStore
	events    *mocks.RecordingPublisher
	codec     *auth.Codec
	registry  *prometheus.Registry
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := testHasher.Hash(pw)
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := auth.NewCodec(auth.CodecConfig{SigningKey: []byte("test-secret")})
	require.NoError(t, err)

	users := mocks.NewMemoryCredentialStore(
		&entity.User{ID: 1, FirstName: "Admin", LastName: "StreamFlow", Email: "admin@streamflow.com", PasswordHash: mustHash(t, "admin123"), Role: auth.RoleAdministrator},
		&entity.User{ID: 7, FirstName: "Ana", LastName: "Bell", Email: "a@b.com", PasswordHash: mustHash(t, "secret1"), Role: auth.RoleCustomer},
		&entity.User{ID: 8, FirstName: "Bo", LastName: "Diaz", Email: "bo@b.com", PasswordHash: mustHash(t, "secret2"), Role: auth.RoleCustomer},
	)
	revoked := mocks.NewMemoryRevocationStore()
	events := &mocks.RecordingPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	a := NewAuthority(Options{
		Users:   users,
		Ledger:  revocation.NewLedger(revoked, nil),
		Codec:   codec,
		Hasher:  testHasher,
		Events:  events,
		Metrics: m,
	})
	return &fixture{authority: a, users: users, revoked: revoked, events: events, codec: codec, registry: reg}
}

// outcomes returns auth_operations_total for op and outcome.
func (f *fixture) outcomes(t *testing.T, op, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "auth_operations_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["op"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func (f *fixture) login(t *testing.T, email, pw string) *LoginResult {
	t.Helper()
	res, err := f.authority.Login(context.Background(), email, pw)
	require.NoError(t, err)
	return res
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)

	res := f.login(t, "a@b.com", "secret1")

	assert.Equal(t, int64(7), res.User.ID)
	assert.Equal(t, auth.RoleCustomer, res.User.Role)
	assert.NotEmpty(t, res.Token.Token)

	id, err := f.codec.Verify(res.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.ID)
	assert.Equal(t, "a@b.com", id.Email)
	assert.Equal(t, res.Token.JTI, id.JTI)

	require.Equal(t, []event.Kind{event.KindUserLogin}, f.events.Kinds())
	ev := f.events.Events()[0]
	assert.Equal(t, int64(7), ev.Data.UserID)
	assert.Equal(t, "a@b.com", ev.Data.Email)
	assert.Equal(t, 1.0, f.outcomes(t, "login", "ok"))
}

func TestLogin_EachLoginGetsDistinctJTI(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, "a@b.com", "secret1")
	second := f.login(t, "a@b.com", "secret1")
	assert.NotEqual(t, first.Token.JTI, second.Token.JTI)
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	f := newFixture(t)

	_, unknown := f.authority.Login(context.Background(), "ghost@b.com", "secret1")
	_, wrong := f.authority.Login(context.Background(), "a@b.com", "nope")

	require.ErrorIs(t, unknown, auth.ErrInvalidCredentials)
	require.ErrorIs(t, wrong, auth.ErrInvalidCredentials)
	assert.Equal(t, auth.KindOf(unknown), auth.KindOf(wrong))
	assert.Empty(t, f.events.Kinds())
}

func TestLogin_EmptyInput(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ email, pw string }{{"", "secret1"}, {"a@b.com", ""}, {"  ", "x"}} {
		_, err := f.authority.Login(context.Background(), tc.email, tc.pw)
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
}

func TestLogin_SoftDeletedUserCannotLogin(t *testing.T) {
	f := newFixture(t)
	f.users.SoftDelete(7)

	_, err := f.authority.Login(context.Background(), "a@b.com", "secret1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.users.Err = errors.New("connection refused")

	_, err := f.authority.Login(context.Background(), "a@b.com", "secret1")
	require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.Equal(t, 1.0, f.outcomes(t, "login", "store_unavailable"))
}

func TestAuthenticate_ValidToken(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")

	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.ID)
	assert.Equal(t, auth.RoleCustomer, id.Role)
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.authority.Authenticate(context.Background(), "not-a-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")
	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)

	require.NoError(t, f.authority.Logout(context.Background(), id))

	_, err = f.authority.Authenticate(context.Background(), res.Token.Token)
	require.ErrorIs(t, err, auth.ErrRevokedToken)
	assert.Equal(t, []event.Kind{event.KindUserLogin, event.KindUserLogout}, f.events.Kinds())
}

func TestLogout_OnlyRevokesThatSession(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, "a@b.com", "secret1")
	second := f.login(t, "a@b.com", "secret1")

	id, err := f.authority.Authenticate(context.Background(), first.Token.Token)
	require.NoError(t, err)
	require.NoError(t, f.authority.Logout(context.Background(), id))

	_, err = f.authority.Authenticate(context.Background(), second.Token.Token)
	require.NoError(t, err)
}

func TestLogout_Twice(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")
	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)

	require.NoError(t, f.authority.Logout(context.Background(), id))
	require.NoError(t, f.authority.Logout(context.Background(), id))
	assert.Equal(t, 1, f.revoked.Len())
}

func TestLogout_StoreFailure(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")
	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)

	f.revoked.SetErr(errors.New("db down"))
	err = f.authority.Logout(context.Background(), id)
	require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.Equal(t, []event.Kind{event.KindUserLogin}, f.events.Kinds())
}

func TestAuthenticate_FailsClosedWhenLedgerUnavailable(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")
	f.revoked.SetErr(context.DeadlineExceeded)

	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.Zero(t, id)
}

func TestChangePassword_SelfService(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer, JTI: "7_x"}
	old := f.users.PasswordHash(7)

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       7,
		CurrentPassword:    "secret1",
		NewPassword:        "newpass",
		ConfirmNewPassword: "newpass",
	})
	require.NoError(t, err)
	assert.NotEqual(t, old, f.users.PasswordHash(7))

	f.login(t, "a@b.com", "newpass")
	_, err = f.authority.Login(context.Background(), "a@b.com", "secret1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	kinds := f.events.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, event.KindUserPasswordChanged, kinds[0])
}

func TestChangePassword_SelfServiceWrongCurrent(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}
	old := f.users.PasswordHash(7)

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       7,
		CurrentPassword:    "wrong",
		NewPassword:        "newpass",
		ConfirmNewPassword: "newpass",
	})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, old, f.users.PasswordHash(7))
	assert.Empty(t, f.events.Kinds())
}

func TestChangePassword_CustomerCannotChangeOthers(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}
	old := f.users.PasswordHash(8)

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       8,
		CurrentPassword:    "secret1",
		NewPassword:        "x",
		ConfirmNewPassword: "x",
	})
	require.ErrorIs(t, err, auth.ErrForbidden)
	assert.Equal(t, old, f.users.PasswordHash(8))
}

func TestChangePassword_MismatchCheckedBeforeStore(t *testing.T) {
	f := newFixture(t)
	f.users.Err = errors.New("store must not be called")
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       7,
		CurrentPassword:    "secret1",
		NewPassword:        "x",
		ConfirmNewPassword: "y",
	})
	require.ErrorIs(t, err, auth.ErrPasswordMismatch)
}

func TestChangePassword_ForbiddenBeforeMismatch(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       8,
		NewPassword:        "x",
		ConfirmNewPassword: "y",
	})
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestChangePassword_EmptyNewPassword(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:    7,
		CurrentPassword: "secret1",
	})
	require.ErrorIs(t, err, auth.ErrPasswordMismatch)
}

func TestChangePassword_OverlongNewPassword(t *testing.T) {
	f := newFixture(t)
	acting := auth.Identity{ID: 7, Email: "a@b.com", Role: auth.RoleCustomer}
	long := strings.Repeat("x", 73)

	err := f.authority.ChangePassword(context.Background(), acting, ChangePasswordInput{
		TargetUserID:       7,
		CurrentPassword:    "secret1",
		NewPassword:        long,
		ConfirmNewPassword: long,
	})
	require.ErrorIs(t, err, auth.ErrPasswordMismatch)
	assert.Empty(t, f.events.Kinds())

	f.login(t, "a@b.com", "secret1")
}

func TestChangePassword_AdminResetsWithoutCurrentPassword(t *testing.T) {
	f := newFixture(t)
	admin := auth.Identity{ID: 1, Email: "admin@streamflow.com", Role: auth.RoleAdministrator}

	err := f.authority.ChangePassword(context.Background(), admin, ChangePasswordInput{
		TargetUserID:       8,
		NewPassword:        "reset",
		ConfirmNewPassword: "reset",
	})
	require.NoError(t, err)
	f.login(t, "bo@b.com", "reset")

	ev := f.events.Events()[0]
	assert.Equal(t, event.KindUserPasswordChanged, ev.Kind)
	assert.Equal(t, int64(1), ev.Data.UserID)
}

func TestChangePassword_AdminTargetMissing(t *testing.T) {
	f := newFixture(t)
	admin := auth.Identity{ID: 1, Email: "admin@streamflow.com", Role: auth.RoleAdministrator}

	err := f.authority.ChangePassword(context.Background(), admin, ChangePasswordInput{
		TargetUserID:       99,
		NewPassword:        "x",
		ConfirmNewPassword: "x",
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestChangePassword_SoftDeletedTargetIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.users.SoftDelete(8)
	admin := auth.Identity{ID: 1, Email: "admin@streamflow.com", Role: auth.RoleAdministrator}

	err := f.authority.ChangePassword(context.Background(), admin, ChangePasswordInput{
		TargetUserID:       8,
		NewPassword:        "x",
		ConfirmNewPassword: "x",
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestChangePassword_ExistingSessionsSurvive(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "a@b.com", "secret1")
	id, err := f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)

	require.NoError(t, f.authority.ChangePassword(context.Background(), id, ChangePasswordInput{
		TargetUserID:       7,
		CurrentPassword:    "secret1",
		NewPassword:        "newpass",
		ConfirmNewPassword: "newpass",
	}))

	_, err = f.authority.Authenticate(context.Background(), res.Token.Token)
	require.NoError(t, err)
}
