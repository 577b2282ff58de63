package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// prompt reads one line from in after writing label to out.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func newSignInCmd() *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a username or email",
		Long:  "Sign in and store the session token for later commands. Missing values are prompted for.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user := client.User(cmd.Context()); user != nil && client.Session.IsAuthenticated() {
				return fmt.Errorf("already signed in as %s (run gochef signout first)", user.Username)
			}

			var err error
			in := bufio.NewReader(cmd.InOrStdin())
			if identifier == "" {
				if identifier, err = prompt(in, cmd.ErrOrStderr(), "Username or email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(in, cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}

			user, err := client.Session.SignIn(cmd.Context(), identifier, password)
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Username, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&identifier, "identifier", "u", "", "Username or email (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	return cmd
}

func newSignUpCmd() *cobra.Command {
	var username, email, password, confirm string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = password
			}
			if err := client.Session.SignUp(cmd.Context(), username, email, password, confirm); err != nil {
				return fmt.Errorf("sign up: %w", err)
			}
			if msg, ok := client.Session.TakeFlash(cmd.Context()); ok {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (at least 3 characters)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 6 characters)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation (defaults to --password)")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !client.Session.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			client.Session.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoAmICmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireSession(); err != nil {
				if notice, ok := client.Session.BannedNotice(ctx); ok {
					return errors.New(notice)
				}
				return err
			}
			if refresh {
				if _, err := client.Session.CheckAuth(ctx); err != nil {
					return fmt.Errorf("check session: %w", err)
				}
				if err := requireSession(); err != nil {
					return err
				}
			}

			user := client.User(ctx)
			if user == nil {
				return errNotSignedIn
			}
			if flagJSON {
				return printJSON(cmd, user)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "User:  %s\n", user.Username)
			if user.Email != "" {
				fmt.Fprintf(w, "Email: %s\n", user.Email)
			}
			fmt.Fprintf(w, "Role:  %s\n", user.Role)
			if claims, ok := client.Validator.Claims(ctx); ok {
				if exp := claims.Expiry(); !exp.IsZero() {
					fmt.Fprintf(w, "Token expires: %s\n", exp.Local().Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read the profile from the server first")
	return cmd
}
