package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/user"
	"github.com/trezcool/feeded/storage/database"
)

var (
	readPasswordFunc  = term.ReadPassword     // mockable
	runMigrationsFunc = database.RunMigrations // mockable

	errHelp        = errors.New("help provided")
	errNoSQLEngine = errors.New("migrations require the postgres database engine")
)

type commandLine struct {
	db          *sqlx.DB // nil unless the postgres engine is used
	usrSvc      *user.Service
	dispatchSvc *dispatch.Service
	out         io.Writer
	now         func() time.Time
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]            - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME   - create an organization account; the password is prompted next")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -email EMAIL        - reset user's password; the password is prompted next")
	_, _ = fmt.Fprintln(cli.out, "  scan                              - email every survey due now")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The account email.")
	addUserName := addUserCmd.String("name", "", "The organization name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "scan":
		return cli.scan(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	return string(pwd), err
}

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLEngine
	}
	return runMigrationsFunc(cli.db, args[0], args[1:]...)
}

func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string) error {
	usr, err := cli.usrSvc.Create(ctx, user.NewUser{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "user %s created: %s\n", usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr.ID, user.SetUserPassword{Password: pwd, PasswordConfirm: pwd})
	return err
}

func (cli *commandLine) scan(ctx context.Context) error {
	res, err := cli.dispatchSvc.Scan(ctx, cli.now())
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil && err == nil {
		err = encErr
	}
	return err
}
