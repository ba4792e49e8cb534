package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
	emailsvc "github.com/databayt/hogwarts-sub013/services/email"
	"github.com/databayt/hogwarts-sub013/testutil"
)

const pwd = "Kp9#vX2!qZ"

func TestCreate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")

	nu := user.NewUser{
		Name:            "Minerva McGonagall",
		Username:        " McGonagall ",
		Email:           "Minerva@Hogwarts.test",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{user.RoleAdminPrincipal},
	}
	require.NoError(t, nu.Validate())
	usr, err := env.Users.Create(ctx, sch.ID, nu)
	require.NoError(t, err)
	assert.Equal(t, "mcgonagall", usr.Username)
	assert.Equal(t, "minerva@hogwarts.test", usr.Email)
	assert.Equal(t, sch.ID, usr.SchoolID)
	assert.True(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword(pwd))

	t.Run("username and email are unique", func(t *testing.T) {
		other := testutil.CreateSchool(t, env, "Beauxbatons", "beauxbatons")
		dup := nu
		dup.Email = "someone@beauxbatons.test"
		_, err := env.Users.Create(ctx, other.ID, dup)
		assert.ErrorIs(t, err, user.ErrUsernameExists)

		dup = nu
		dup.Username = "maxime"
		_, err = env.Users.Create(ctx, other.ID, dup)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "email", verr.Fields[0].Field)
	})

	t.Run("password policy", func(t *testing.T) {
		for _, p := range []string{"short", "12345678901", "alllowercase1!", "NoDigits!!", "mcgonagall1A!"} {
			weak := nu
			weak.Password, weak.PasswordConfirm = p, p
			assert.Error(t, weak.Validate(), p)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		bad := nu
		bad.Roles = []string{"headmaster:"}
		assert.Error(t, bad.Validate())
	})
}

func TestGetByIDIsScoped(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")
	other := testutil.CreateSchool(t, env, "Beauxbatons", "beauxbatons")
	usr := testutil.CreateUser(t, env.UserRepo, sch.ID, "Severus Snape", "snape", "snape@hogwarts.test", pwd, []string{user.RoleTeacher}, true)

	_, err := env.Users.GetByID(ctx, sch.ID, usr.ID)
	require.NoError(t, err)
	_, err = env.Users.GetByID(ctx, other.ID, usr.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)

	found, err := env.Users.GetByUsernameOrEmail(ctx, " SNAPE@hogwarts.test")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, found.ID)
}

func TestCountByRoleGroup(t *testing.T) {
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Albus", "dumbledore", "", pwd, []string{user.RoleAdminOwner, user.RoleTeacher}, true)
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Severus", "snape", "", pwd, []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Quirinus", "quirrell", "", pwd, []string{user.RoleTeacher}, false)
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Lily", "lily_potter", "", pwd, []string{user.RoleGuardian}, true)

	counts, err := env.Users.CountByRoleGroup(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["admin"])
	assert.Equal(t, 2, counts["teacher"], "inactive users are not counted")
	assert.Equal(t, 1, counts["guardian"])
	assert.Zero(t, counts["student"])
}

func TestPasswordReset(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")
	usr := testutil.CreateUser(t, env.UserRepo, sch.ID, "Minerva McGonagall", "mcgonagall", "minerva@hogwarts.test", pwd, nil, true)
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Gilderoy Lockhart", "lockhart", "gilderoy@hogwarts.test", pwd, nil, false)

	assert.ErrorIs(t, env.Users.RequestPasswordReset(ctx, "nobody@hogwarts.test"), user.ErrNotFound)
	assert.ErrorIs(t, env.Users.RequestPasswordReset(ctx, "gilderoy@hogwarts.test"), user.ErrNotFound)
	require.NoError(t, env.Users.RequestPasswordReset(ctx, " Minerva@Hogwarts.test "))

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "minerva@hogwarts.test", sent[0].To[0].Address)
	data := sent[0].TemplateData.(map[string]string)
	assert.Equal(t, user.EncodeUID(usr), data["UID"])

	newPwd := "Tr4nsf!guration"
	reset := user.ResetUserPassword{Token: data["Token"], UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd}
	require.NoError(t, reset.Validate())

	bad := reset
	bad.Token = "k2x1-forged"
	_, err := env.Users.ResetPassword(ctx, bad)
	assert.EqualError(t, err, "invalid token")

	updated, err := env.Users.ResetPassword(ctx, reset)
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword(newPwd))
	assert.Error(t, updated.CheckPassword(pwd))

	_, err = env.Users.ResetPassword(ctx, reset)
	assert.EqualError(t, err, "invalid token", "tokens are single use")
}
