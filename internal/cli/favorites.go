package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/gochef/pkg/model"
)

func newFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage favorite recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipes, err := client.Favorites.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list favorites: %w", err)
			}
			return printRecipes(cmd, recipes)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "toggle <recipe-id>",
			Short: "Add or remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fav, err := client.Favorites.Toggle(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("toggle favorite: %w", err)
				}
				if fav {
					client.Toasts.Show("Added to favorites", model.ToastFavorite, 0)
				} else {
					client.Toasts.Info("Removed from favorites")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <recipe-id>",
			Short: "Remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client.Favorites.Remove(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("remove favorite: %w", err)
				}
				client.Toasts.Info("Removed from favorites")
				return nil
			},
		},
		&cobra.Command{
			Use:   "check <recipe-id>",
			Short: "Report whether a recipe is a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fav := client.Favorites.Check(cmd.Context(), args[0])
				if flagJSON {
					return printJSON(cmd, map[string]bool{"isFavorite": fav})
				}
				fmt.Fprintln(cmd.OutOrStdout(), fav)
				return nil
			},
		},
	)
	return cmd
}
