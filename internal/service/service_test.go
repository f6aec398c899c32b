package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/logging"
	"github.com/baiirun/mesa/internal/metrics"
	"github.com/baiirun/mesa/internal/model"
)

var testNow = time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *db.DB
	admin *model.User
	tech  *model.User
	tech2 *model.User
	emp   *model.User
	other *model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init())
	store.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = store.Close() })

	issuer, err := auth.NewIssuer(auth.TokenOptions{Secret: []byte("test-secret"), TTL: time.Hour})
	require.NoError(t, err)

	f := &fixture{
		svc: New(store, issuer, logging.Discard(), metrics.New(), Options{LockThreshold: 3}),
		db:  store,
	}
	f.admin = f.user(t, "admin", model.RoleAdmin, "Directivos")
	f.tech = f.user(t, "juan", model.RoleSupport, "Directivos")
	f.tech2 = f.user(t, "maria", model.RoleSupport, "Directivos")
	f.emp = f.user(t, "carlos", model.RoleEmployee, "Facturación")
	f.other = f.user(t, "ana", model.RoleEmployee, "Inventario")
	return f
}

func (f *fixture) user(t *testing.T, username string, role model.Role, dept string) *model.User {
	t.Helper()
	u, err := f.svc.createUser(context.Background(), UserInput{
		Username: username, Password: username + "-pass", FullName: "User " + username,
		Departments: model.Departments{dept}, Role: role,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) request(t *testing.T, by *model.User, title string) *model.Request {
	t.Helper()
	r, err := f.svc.CreateRequest(context.Background(), by, CreateRequestInput{Title: title})
	require.NoError(t, err)
	return r
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func TestLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "carlos", "carlos-pass", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, f.emp.ID, res.User.ID)

	u, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "carlos", u.Username)

	_, err = f.svc.Login(ctx, "", "x", "10.0.0.1")
	assertKind(t, err, apperr.KindInvalid)

	_, err = f.svc.Login(ctx, "carlos", "wrong", "10.0.0.1")
	assertKind(t, err, apperr.KindUnauthorized)
	assert.Equal(t, "Incorrect username or password", apperr.Message(err))

	_, err = f.svc.Login(ctx, "nobody", "x", "10.0.0.1")
	assertKind(t, err, apperr.KindUnauthorized)
}

func TestLogin_Lockout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "carlos", "wrong", "10.0.0.1")
		assertKind(t, err, apperr.KindUnauthorized)
	}
	// Locked even with the right password
	_, err := f.svc.Login(ctx, "carlos", "carlos-pass", "10.0.0.1")
	assertKind(t, err, apperr.KindTooManyRequests)

	// Other addresses are unaffected
	_, err = f.svc.Login(ctx, "carlos", "carlos-pass", "10.0.0.2")
	require.NoError(t, err)

	// The window passes
	f.db.SetClock(func() time.Time { return testNow.Add(16 * time.Minute) })
	_, err = f.svc.Login(ctx, "carlos", "carlos-pass", "10.0.0.1")
	require.NoError(t, err)
}

func TestAuthenticate_Invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "garbage")
	assertKind(t, err, apperr.KindUnauthorized)

	res, err := f.svc.Login(ctx, "ana", "ana-pass", "ip")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, f.other.ID))
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	assertKind(t, err, apperr.KindUnauthorized)
}

func TestAuthenticate_TokenFollowsUserAcrossRename(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "carlos", "carlos-pass", "ip")
	require.NoError(t, err)

	renamed := "carlos.lopez"
	_, err = f.svc.UpdateUser(ctx, f.admin, f.emp.ID, UserPatch{Username: &renamed})
	require.NoError(t, err)
	newcomer, err := f.svc.CreateUser(ctx, f.admin, UserInput{
		Username: "carlos", Password: "otra-clave", FullName: "Carlos Ruiz", Role: model.RoleEmployee,
	})
	require.NoError(t, err)

	u, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.emp.ID, u.ID, "the old token still belongs to the renamed user")
	assert.Equal(t, "carlos.lopez", u.Username)
	assert.NotEqual(t, newcomer.ID, u.ID)
}

func TestUpdateProfile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	name := "  Carlos López "
	blank := "   "
	u, err := f.svc.UpdateProfile(ctx, f.emp, ProfileInput{FullName: &name, Password: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Carlos López", u.FullName)

	// Blank password left the old one in place
	_, err = f.svc.Login(ctx, "carlos", "carlos-pass", "ip")
	require.NoError(t, err)

	pw := "new-password"
	_, err = f.svc.UpdateProfile(ctx, f.emp, ProfileInput{Password: &pw})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "carlos", "new-password", "ip")
	require.NoError(t, err)

	short := "abc"
	_, err = f.svc.UpdateProfile(ctx, f.emp, ProfileInput{Password: &short})
	assertKind(t, err, apperr.KindInvalid)
}

func TestUsers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, f.tech, UserInput{Username: "x", Password: "secret1", FullName: "X", Role: model.RoleEmployee})
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.svc.CreateUser(ctx, f.admin, UserInput{Username: "carlos", Password: "secret1", FullName: "Dup", Role: model.RoleEmployee})
	assertKind(t, err, apperr.KindBadRequest)
	assert.Equal(t, "Username already registered", apperr.Message(err))

	_, err = f.svc.CreateUser(ctx, f.admin, UserInput{Username: "x", Password: "secret1", FullName: "X", Role: "root"})
	assertKind(t, err, apperr.KindInvalid)

	u, err := f.svc.CreateUser(ctx, f.admin, UserInput{Username: "pedro", Password: "secret1", FullName: "Pedro", Role: model.RoleEmployee})
	require.NoError(t, err)

	users, err := f.svc.ListUsers(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, users, 6)

	taken := "carlos"
	_, err = f.svc.UpdateUser(ctx, f.admin, u.ID, UserPatch{Username: &taken})
	assertKind(t, err, apperr.KindBadRequest)

	role := model.RoleSupport
	updated, err := f.svc.UpdateUser(ctx, f.admin, u.ID, UserPatch{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSupport, updated.Role)

	_, err = f.svc.UpdateUser(ctx, f.admin, "missing", UserPatch{Role: &role})
	assertKind(t, err, apperr.KindNotFound)
}

func TestAddUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	u, err := f.svc.AddUser(ctx, UserInput{Username: " ops ", Password: "secret1", FullName: "Ops", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "ops", u.Username)
	assert.Equal(t, model.Departments{}, u.Departments)

	_, err = f.svc.AddUser(ctx, UserInput{Username: "ops", Password: "secret1", FullName: "Ops", Role: model.RoleAdmin})
	assertKind(t, err, apperr.KindBadRequest)

	_, err = f.svc.AddUser(ctx, UserInput{Username: "short", Password: "123", FullName: "S", Role: model.RoleEmployee})
	assertKind(t, err, apperr.KindInvalid)
}

func TestDeleteUser_Guards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.DeleteUser(ctx, f.admin, f.admin.ID)
	assertKind(t, err, apperr.KindBadRequest)

	// Last admin cannot be removed or demoted
	other, err := f.svc.CreateUser(ctx, f.admin, UserInput{Username: "boss", Password: "secret1", FullName: "Boss", Role: model.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(ctx, other, f.admin.ID))
	err = f.svc.DeleteUser(ctx, other, other.ID)
	assertKind(t, err, apperr.KindBadRequest)
	demote := model.RoleSupport
	_, err = f.svc.UpdateUser(ctx, other, other.ID, UserPatch{Role: &demote})
	assertKind(t, err, apperr.KindBadRequest)

	r := f.request(t, f.emp, "printer")
	_, err = f.svc.Assign(ctx, other, r.ID, AssignInput{UserID: &f.tech.ID})
	require.NoError(t, err)
	err = f.svc.DeleteUser(ctx, other, f.tech.ID)
	assertKind(t, err, apperr.KindBadRequest)

	err = f.svc.DeleteUser(ctx, other, "missing")
	assertKind(t, err, apperr.KindNotFound)
}
