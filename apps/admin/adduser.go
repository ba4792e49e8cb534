package main

import (
	"context"
	"errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/user"
)

var errOtherSchool = errors.New("user belongs to another school")

// addUser updates or creates a user.User of the school with code `schoolCode`.
func (cli *commandLine) addUser(schoolCode, name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	sch, err := cli.schools.GetByCode(ctx, schoolCode)
	if err != nil {
		return err
	}

	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if core.IsNotFound(err) {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: email})
	}
	create := core.IsNotFound(err)
	if err != nil && !create {
		return err
	}

	now := core.NowFunc()
	if create {
		usr = user.User{
			SchoolID:  sch.ID,
			Name:      name,
			Username:  uname,
			Email:     email,
			Roles:     []string{},
			CreatedAt: now,
		}
	} else if usr.SchoolID != sch.ID {
		return errOtherSchool
	}
	if isAdmin && !core.ContainsString(usr.Roles, user.RoleAdminOwner) {
		usr.Roles = append(usr.Roles, user.RoleAdminOwner)
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if create {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	cli.logger.Info("user saved", map[string]interface{}{"id": usr.ID, "username": usr.Username, "created": create})
	return nil
}
