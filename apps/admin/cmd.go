package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	out     io.Writer
	logger  core.Logger
	migrate func(command string, args ...string) error
	schools *school.Service
	usrRepo user.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, redo, version, ...)")
	fmt.Fprintln(cli.out, "  addschool -name NAME -code CODE [-email EMAIL] - register a school")
	fmt.Fprintln(cli.out, "  listschools - list every school")
	fmt.Fprintln(cli.out, "  setschoolstatus -code CODE -active=true|false - activate or deactivate a school")
	fmt.Fprintln(cli.out, "  adduser -school CODE -username USERNAME -email EMAIL [-name NAME] [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "addschool":
		cmd := cli.newFlagSet("addschool")
		name := cmd.String("name", "", "The school's name.")
		code := cmd.String("code", "", "A short unique code (letters, digits and dashes).")
		email := cmd.String("email", "", "The school's contact email.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *code == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addSchool(school.NewSchool{Name: *name, Code: *code, Email: *email})

	case "listschools":
		return cli.listSchools()

	case "setschoolstatus":
		cmd := cli.newFlagSet("setschoolstatus")
		code := cmd.String("code", "", "The school's code.")
		active := cmd.Bool("active", true, "Whether the school's users may log in.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.setSchoolStatus(*code, *active)

	case "adduser":
		cmd := cli.newFlagSet("adduser")
		code := cmd.String("school", "", "The code of the user's school.")
		uname := cmd.String("username", "", "The user's username.")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		name := cmd.String("name", "", "The user's full name (defaults to the username).")
		isAdmin := cmd.Bool("admin", false, "Grant the school owner role.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *code == "" || *uname == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addUser(*code, *name, *uname, *email, pwd, *isAdmin)

	case "resetpassword":
		cmd := cli.newFlagSet("resetpassword")
		uname := cmd.String("username", "", "The user's username or email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*uname, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
