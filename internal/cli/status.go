package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/api"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [username-or-email]",
		Short: "Check whether an account is active or banned",
		Long:  "Check an account's standing. Without an argument the signed-in user is checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var ident string
			if len(args) == 1 {
				ident = args[0]
			} else {
				user := client.User(ctx)
				if user == nil {
					return errNotSignedIn
				}
				ident = user.Username
			}

			st, err := client.Auth.CheckStatus(ctx, ident)
			if err != nil {
				return fmt.Errorf("check status: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, st)
			}

			state := "active"
			switch {
			case st.Banned:
				state = "banned"
			case !st.Active:
				state = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account: %s\n", ident)
			fmt.Fprintf(cmd.OutOrStdout(), "  State: %s\n", state)
			if st.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Note:  %s\n", st.Message)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe whether the auth backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := api.CheckHealth(cmd.Context(), client.AuthHTTP, client.Config.Health.Timeout)
			if flagJSON {
				return printJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Status, res.Message)
			if res.Status != api.StatusOnline {
				return fmt.Errorf("backend %s", res.Status)
			}
			return nil
		},
	}
}
