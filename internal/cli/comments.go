package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/gochef/pkg/model"
)

func newCommentsCmd() *cobra.Command {
	opts := model.DefaultPageOptions()

	cmd := &cobra.Command{
		Use:   "comments <recipe-id>",
		Short: "Read and write recipe comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := client.Comments.List(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("list comments: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, page)
			}
			w := cmd.OutOrStdout()
			if len(page.Content) == 0 {
				fmt.Fprintln(w, "No comments yet.")
				return nil
			}
			for _, c := range page.Content {
				author := "?"
				if c.Author != nil {
					author = c.Author.Username
				}
				fmt.Fprintf(w, "[%s] %s: %s\n", c.ID, author, c.Content)
			}
			if !page.Last {
				fmt.Fprintf(w, "\n(page %d of %d; use --page %d for more)\n", page.Number+1, page.TotalPages, page.Number+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Page, "page", opts.Page, "Page number, starting at 0")
	cmd.Flags().IntVar(&opts.Size, "size", opts.Size, "Page size (1-100)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <recipe-id> <text>",
			Short: "Comment on a recipe",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client.Comments.Add(cmd.Context(), args[0], args[1])
				if err != nil {
					return fmt.Errorf("add comment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Comment added: %s\n", c.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "edit <recipe-id> <comment-id> <text>",
			Short: "Edit your comment",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client.Comments.Update(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return fmt.Errorf("edit comment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Comment updated: %s\n", c.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <recipe-id> <comment-id>",
			Short: "Delete your comment",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client.Comments.Delete(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("delete comment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Comment deleted: %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}
