package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
	"github.com/trezcool/podesk/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword         // mockable
	migrateFunc      = database.RunMigrations    // mockable
	createDBFunc     = database.CreateIfNotExist // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	usrRepo    user.Repository
	usrSvc     user.Service
	studentSvc student.Service
	reportSvc  incident.Service
	out        io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "PODesk administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.createDBCmd(),
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.offensesCmd(),
		cli.escalateCmd(),
	)
	return root
}

// run executes the command line; args include the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) createDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "createdb",
		Short: "Create the MySQL database and application user if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.conf.Database.Engine != database.MySQL {
				return fmt.Errorf("createdb: not supported for %q", cli.conf.Database.Engine)
			}
			if err := createDBFunc(cli.conf); err != nil {
				return err
			}
			cmd.Printf("database %q ready\n", cli.conf.Database.Name)
			return nil
		},
	}
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run database migrations (up, up-by-one, up-to, down, down-to, redo, reset, status, version)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, uname, email string
	var roles []string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the user having the given username or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" && email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			usr, err := cli.addUser(name, uname, email, pwd, roles)
			if err != nil {
				return err
			}
			cmd.Printf("user %q saved with roles %v\n", usr.Username, usr.Roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The user's full name")
	cmd.Flags().StringVar(&uname, "username", "", "The user's username")
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	cmd.Flags().StringSliceVar(&roles, "role", []string{user.RoleAdmin}, "The user's roles")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.resetPassword(uname, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username or email. The password will be prompted next.")
	return cmd
}

func (cli *commandLine) offensesCmd() *cobra.Command {
	var severity string

	cmd := &cobra.Command{
		Use:   "offenses",
		Short: "List the offense catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.listOffenses(cmd.OutOrStdout(), severity)
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "Only list offenses of this severity (minor|major)")
	return cmd
}

func (cli *commandLine) escalateCmd() *cobra.Command {
	var lrn, issuer string

	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Apply the repeat-offense rule to a student's pending minor reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lrn == "" || issuer == "" {
				_ = cmd.Usage()
				return errHelp
			}
			esc, err := cli.escalate(lrn, issuer)
			if err != nil {
				return err
			}
			if esc == nil {
				cmd.Println("nothing to escalate")
				return nil
			}
			cmd.Printf("opened case %s covering %d report(s)\n", esc.Case.CaseNo, len(esc.Reports))
			return nil
		},
	}
	cmd.Flags().StringVar(&lrn, "student", "", "The student's LRN")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Username or email of the POD staff issuing the call slip")
	return cmd
}

func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Print("Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
