package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func newCreateUserCmd(opts *options) *cobra.Command {
	var (
		in   services.RegisterInput
		role string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account with the given role",
		Long: `Create an account with the given role. The password is read from the
terminal without echo, or from the first line of stdin when it is not a
terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			password, err := getPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			defer common.WipeByteArray(password)
			in.Password = string(password)

			db, rm, err := repomanager.Connect(ctx, opts.cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if db != nil {
				defer db.Close()
			}

			issuer := auth.NewIssuer(auth.Config{Secret: []byte(opts.cfg.SecretKey)}, opts.logger)
			svc := services.NewAuthService(db, rm, auth.NewBcryptHasher(), issuer, opts.logger, nil)

			user, err := svc.CreateUser(ctx, in, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&in.Email, "email", "e", "", "email address")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&role, "role", string(models.RoleFounder), "founder, admin or user")
	for _, name := range []string{"email", "first-name", "last-name"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// getPassword prompts on w when stdin is a terminal and reads the first
// line of r otherwise. The caller wipes the result.
func getPassword(r io.Reader, w io.Writer) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if r == os.Stdin && isTerminal(fd) {
		fmt.Fprint(w, "Enter password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		return pw, err
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, fmt.Errorf("empty password")
	}
	return []byte(line), nil
}
