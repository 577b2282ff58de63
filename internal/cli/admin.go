package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage accounts (administrators only)",
	}
	cmd.AddCommand(newAdminUsersCmd(), newAdminRoleCmd(), newAdminBanCmd())
	return cmd
}

func newAdminUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			users, err := client.Admin.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, users)
			}
			w := cmd.OutOrStdout()
			for _, u := range users {
				state := "active"
				if u.Banned {
					state = "banned"
				}
				fmt.Fprintf(w, "[%s] %s <%s> %s %s\n", u.ID, u.Username, u.Email, u.Role, state)
			}
			return nil
		},
	}
}

func newAdminRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <user|admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			res, err := client.Admin.SetRole(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}

func newAdminBanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ban <user-id>",
		Short: "Ban a user, or lift an existing ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}
			res, err := client.Admin.ToggleBan(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("toggle ban: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}
