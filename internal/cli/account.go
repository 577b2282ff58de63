package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Change the signed-in account's username or password",
	}
	cmd.AddCommand(newUsernameCmd(), newPasswordCmd())
	return cmd
}

func newUsernameCmd() *cobra.Command {
	var current string

	cmd := &cobra.Command{
		Use:   "username <new-username>",
		Short: "Change the username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			if err := client.Session.UpdateUsername(cmd.Context(), current, args[0]); err != nil {
				return fmt.Errorf("update username: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Username changed to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "password", "", "Current password")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newPasswordCmd() *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			if err := client.Session.UpdatePassword(cmd.Context(), current, next); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password (at least 6 characters)")
	cmd.MarkFlagRequired("current")
	cmd.MarkFlagRequired("new")
	return cmd
}
