package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/gochef/pkg/model"
)

func newContactCmd() *cobra.Command {
	var form model.ContactForm

	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Send a message to the site operators",
		Long:  "Send a message to the site operators. --email defaults to the signed-in user's address.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if form.Email == "" {
				if u := client.User(cmd.Context()); u != nil {
					form.Email = u.Email
				}
			}
			res, err := client.Contact.Submit(cmd.Context(), form)
			if err != nil {
				return fmt.Errorf("contact: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&form.Email, "email", "", "Reply address")
	cmd.Flags().StringVar(&form.Subject, "subject", "", "Subject")
	cmd.Flags().StringVarP(&form.Message, "message", "m", "", "Message text")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Confirm an email address with the token from the verification email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Verification.Verify(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <email>",
			Short: "Show whether an address is verified",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := client.Verification.Status(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("verification status: %w", err)
				}
				if flagJSON {
					return printJSON(cmd, st)
				}
				state := "verified"
				if !st.Verified {
					state = "pending"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], state)
				return nil
			},
		},
		&cobra.Command{
			Use:   "resend <email>",
			Short: "Send the verification email again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := client.Verification.Resend(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("resend verification: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			},
		},
	)
	return cmd
}
