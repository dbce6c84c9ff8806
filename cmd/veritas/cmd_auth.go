package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"veritas/internal/session"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Account email")
	cmd.Flags().StringVar(&f.password, "password", "", "Account password (read from stdin when omitted)")
}

// resolvePassword reads one line from in when --password was not given.
func (f *credentialFlags) resolvePassword(in io.Reader) error {
	if f.password != "" {
		return nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	f.password = strings.TrimRight(line, "\r\n")
	return nil
}

func newSignupCmd(a *app) *cobra.Command {
	var flags struct {
		credentialFlags
		name string
	}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an adjuster account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			sess, err := a.sessions().Signup(cmd.Context(), flags.email, flags.password, flags.name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created. Welcome, %s!\n", sess.User.FirstName)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.name, "name", "", "Full name")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			sess, err := a.sessions().Login(cmd.Context(), flags.email, flags.password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", sess.User.Email)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.sessions().Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

type whoami struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	FirstName string       `json:"first_name"`
	Role      session.Role `json:"role"`
	Expires   string       `json:"expires,omitempty"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in adjuster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			u := a.live.User
			out := whoami{ID: u.ID, Email: u.Email, FirstName: u.FirstName, Role: u.Role}
			if exp, ok := a.live.ExpiresAt(); ok {
				out.Expires = exp.Local().Format("2006-01-02 15:04")
			}
			if a.flags.output == "json" {
				return a.render(cmd.OutOrStdout(), out, nil)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s <%s>\n", u.FirstName, u.Email)
			fmt.Fprintf(w, "Role: %s\n", u.Role)
			if out.Expires != "" {
				fmt.Fprintf(w, "Session expires: %s\n", out.Expires)
			}
			return nil
		},
	}
}
