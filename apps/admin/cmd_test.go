package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
	"github.com/databayt/hogwarts-sub013/testutil"
)

type migrateCall struct {
	command string
	args    []string
}

type testCLI struct {
	*commandLine
	env        *testutil.Env
	out        *bytes.Buffer
	migrations []migrateCall
}

func setup(t *testing.T) *testCLI {
	t.Helper()
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	tc := &testCLI{env: env, out: out}
	tc.commandLine = &commandLine{
		out:    out,
		logger: env.Logger,
		migrate: func(command string, args ...string) error {
			if command == "lol" {
				return errors.New(`"lol": no such command`)
			}
			tc.migrations = append(tc.migrations, migrateCall{command: command, args: args})
			return nil
		},
		schools: env.Schools,
		usrRepo: env.UserRepo,
	}
	return tc
}

// withPassword makes the password prompt return `pwd`.
func withPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *testCLI, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPassword(t, tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, cli.out.String(), "resetpassword -username")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "status", args: []string{"migrate", "status"}},
	})
	assert.Equal(t, []migrateCall{
		{command: "up", args: []string{}},
		{command: "up-to", args: []string{"2"}},
		{command: "status", args: []string{}},
	}, cli.migrations)
}

func Test_commandLine_schools(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "addschool: no args", args: []string{"addschool"}, wantErr: errHelp},
		{name: "addschool: no code", args: []string{"addschool", "-name", "Hogwarts"}, wantErr: errHelp},
		{name: "addschool", args: []string{"addschool", "-name", "Hogwarts", "-code", "HOG", "-email", "Office@Hogwarts.test"}},
		{name: "addschool: duplicate code", args: []string{"addschool", "-name", "Hogwarts 2", "-code", "hog"}, wantErrStr: "a school with this code already exists"},
		{name: "setschoolstatus: no code", args: []string{"setschoolstatus", "-active=false"}, wantErr: errHelp},
		{name: "setschoolstatus: unknown school", args: []string{"setschoolstatus", "-code", "durm", "-active=false"}, wantErrStr: "school not found"},
		{name: "setschoolstatus", args: []string{"setschoolstatus", "-code", "hog", "-active=false"}},
	})

	sch, err := cli.schools.GetByCode(ctx, "HOG")
	require.NoError(t, err)
	assert.Equal(t, "hog", sch.Code)
	assert.Equal(t, "Hogwarts", sch.Name)
	assert.Equal(t, "office@hogwarts.test", sch.Email)
	assert.False(t, sch.IsActive)

	var verrs validator.ValidationErrors
	err = cli.run([]string{"admin", "addschool", "-name", "Durmstrang", "-code", "bad code!", "-email", "nope"})
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	cli.out.Reset()
	require.NoError(t, cli.run([]string{"admin", "listschools"}))
	lines := strings.Split(strings.TrimSpace(cli.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "CODE")
	assert.Contains(t, lines[1], sch.ID)
	assert.Contains(t, lines[1], "false")
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	hog := testutil.CreateSchool(t, cli.env, "Hogwarts", "hog")
	durm := testutil.CreateSchool(t, cli.env, "Durmstrang", "durm")
	testutil.CreateUser(t, cli.env.UserRepo, durm.ID, "Igor", "igor", "igor@durmstrang.test", "pwd", nil, true)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-school", "hog", "-username", "albus", "-email", "albus@hogwarts.test"}, wantErr: errHelp},
		{
			name: "unknown school", args: []string{"adduser", "-school", "beaux", "-username", "albus", "-email", "albus@hogwarts.test"},
			pwd: "phoenix", wantErr: school.ErrNotFound,
		},
		{
			name: "user of another school", args: []string{"adduser", "-school", "hog", "-username", "igor", "-email", "igor@hogwarts.test"},
			pwd: "phoenix", wantErr: errOtherSchool,
		},
		{
			name: "create admin", args: []string{"adduser", "-school", "hog", "-username", "Albus", "-email", "albus@hogwarts.test", "-name", "Albus Dumbledore", "-admin"},
			pwd: "phoenix",
		},
	})

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "albus"})
	require.NoError(t, err)
	assert.Equal(t, hog.ID, usr.SchoolID)
	assert.Equal(t, "Albus Dumbledore", usr.Name)
	assert.Equal(t, []string{user.RoleAdminOwner}, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("phoenix"))

	t.Run("update by email", func(t *testing.T) {
		withPassword(t, "fawkes")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-school", "hog", "-username", "dumbledore", "-email", "albus@hogwarts.test", "-admin"}))

		updated, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, "albus", updated.Username)
		assert.Equal(t, []string{user.RoleAdminOwner}, updated.Roles)
		assert.NoError(t, updated.CheckPassword("fawkes"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	sch := testutil.CreateSchool(t, cli.env, "Hogwarts", "hog")
	usr := testutil.CreateUser(t, cli.env.UserRepo, sch.ID, "User", "awesome", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, pwd: "lmao"},
	}
	runCLITests(t, cli, tests)

	refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}
