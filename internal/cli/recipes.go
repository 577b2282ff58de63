package cli

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/api"
	"github.com/me/gochef/pkg/model"
)

func newRecipesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recipes",
		Aliases: []string{"recipe"},
		Short:   "Browse, create and vote on recipes",
	}
	cmd.AddCommand(
		newRecipesListCmd(),
		newRecipesMineCmd(),
		newRecipesFeedCmd(),
		newRecipesGetCmd(),
		newRecipesGenerateCmd(),
		newRecipesSaveCmd(),
		newRecipesCreateCmd(),
		newRecipesUpdateCmd(),
		newRecipesDeleteCmd(),
		newVoteCmd(),
	)
	return cmd
}

func printRecipes(cmd *cobra.Command, recipes []model.Recipe) error {
	if flagJSON {
		return printJSON(cmd, recipes)
	}
	w := cmd.OutOrStdout()
	if len(recipes) == 0 {
		fmt.Fprintln(w, "No recipes found.")
		return nil
	}
	fmt.Fprintf(w, "%-12s  %-36s  %-14s  %s\n", "ID", "TITLE", "AUTHOR", "VOTES")
	fmt.Fprintf(w, "%-12s  %-36s  %-14s  %s\n", "--", "-----", "------", "-----")
	for _, r := range recipes {
		author := ""
		if r.Author != nil {
			author = r.Author.Username
		}
		fmt.Fprintf(w, "%-12s  %-36s  %-14s  +%d/-%d\n", r.ID, r.Name(), author, r.UpVotes, r.DownVotes)
	}
	return nil
}

func printRecipe(w io.Writer, r *model.Recipe) {
	fmt.Fprintf(w, "Recipe: %s\n", r.ID)
	fmt.Fprintf(w, "  Title:  %s\n", r.Name())
	if r.Author != nil {
		fmt.Fprintf(w, "  Author: %s\n", r.Author.Username)
	}
	if r.Description != "" {
		fmt.Fprintf(w, "  About:  %s\n", r.Description)
	}
	if len(r.Ingredients) > 0 {
		fmt.Fprintf(w, "  Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
	}
	if r.Macros != nil {
		fmt.Fprintf(w, "  Nutrition: %s kcal, %sg protein, %sg carbs, %sg fat\n",
			r.Macros.Calories, r.Macros.ProteinGrams, r.Macros.CarbsGrams, r.Macros.FatGrams)
	}
	fmt.Fprintf(w, "  Votes:  +%d/-%d", r.UpVotes, r.DownVotes)
	if r.UserVote != "" {
		fmt.Fprintf(w, " (yours: %s)", r.UserVote)
	}
	fmt.Fprintln(w)
	if r.Instructions != "" {
		fmt.Fprintf(w, "\n%s\n", r.Instructions)
	}
}

func newRecipesListCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q url.Values
			if query != "" {
				q = url.Values{"q": {query}}
			}
			recipes, err := client.Recipes.List(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list recipes: %w", err)
			}
			return printRecipes(cmd, recipes)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only recipes whose title contains this text")
	return cmd
}

func newRecipesMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your own recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipes, err := client.Recipes.Mine(cmd.Context())
			if err != nil {
				return fmt.Errorf("list my recipes: %w", err)
			}
			return printRecipes(cmd, recipes)
		},
	}
}

func newRecipesFeedCmd() *cobra.Command {
	opts := model.DefaultPageOptions()

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show one page of the recipe feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := client.Recipes.Feed(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("load feed: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, page)
			}
			if err := printRecipes(cmd, page.Content); err != nil {
				return err
			}
			if page.TotalPages > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n(page %d of %d, %d recipes)\n", page.Number+1, page.TotalPages, page.TotalElements)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", opts.Page, "Page number, starting at 0")
	cmd.Flags().IntVar(&opts.Size, "size", opts.Size, "Page size (1-100)")
	cmd.Flags().StringVar(&opts.Sort, "sort", opts.Sort, "Sort order, e.g. createdAt,desc")
	return cmd
}

func newRecipesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <recipe-id>",
		Short: "Show one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := client.Recipes.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get recipe: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, r)
			}
			printRecipe(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newRecipesGenerateCmd() *cobra.Command {
	var req model.GenerateRequest
	var save bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Invent a meal from ingredients",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := client.Recipes.Generate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if save {
				r, err := client.Favorites.SaveGenerated(cmd.Context(), g)
				if err != nil {
					return fmt.Errorf("save generated meal: %w", err)
				}
				if flagJSON {
					return printJSON(cmd, r)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s as %s and added it to favorites.\n", g.MealName, r.ID)
				return nil
			}
			if flagJSON {
				return printJSON(cmd, g)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Meal: %s\n", g.MealName)
			fmt.Fprintf(w, "  Uses: %s\n", strings.Join(g.IngredientsUsed, ", "))
			n := g.Details.Nutrition
			if n.Calories != "" {
				fmt.Fprintf(w, "  Nutrition: %s, protein %s, carbs %s, fat %s\n", n.Calories, n.Protein, n.Carbohydrates, n.Fat)
			}
			if g.Details.Text != "" {
				fmt.Fprintf(w, "\n%s\n", g.Details.Text)
			}
			for i, step := range g.Details.Instructions {
				fmt.Fprintf(w, "  %d. %s\n", i+1, step)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&req.Ingredients, "ingredient", "i", nil, "Ingredient to use (repeatable)")
	cmd.Flags().StringSliceVar(&req.DietaryPreferences, "diet", nil, "Dietary preference (repeatable)")
	cmd.Flags().StringVar(&req.CuisineType, "cuisine", "", "Cuisine type")
	cmd.Flags().BoolVar(&save, "save", false, "Save the meal and mark it favorite")
	return cmd
}

// recipeFlags binds the editable recipe fields.
func recipeFlags(cmd *cobra.Command, in *model.RecipeInput) {
	cmd.Flags().StringVar(&in.Title, "title", "", "Title")
	cmd.Flags().StringVar(&in.Description, "description", "", "Short description")
	cmd.Flags().StringVar(&in.Instructions, "instructions", "", "Preparation steps")
	cmd.Flags().StringSliceVarP(&in.Ingredients, "ingredient", "i", nil, "Ingredient (repeatable)")
	cmd.Flags().StringVar(&in.ImageURL, "image-url", "", "Image URL")
}

func newRecipesSaveCmd() *cobra.Command {
	var in model.RecipeInput

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a recipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := client.Recipes.Save(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("save recipe: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recipe saved: %s\n", r.ID)
			return nil
		},
	}
	recipeFlags(cmd, &in)
	return cmd
}

func newRecipesCreateCmd() *cobra.Command {
	var in model.RecipeInput
	var imagePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recipe, optionally uploading an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			var img *api.Image
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return fmt.Errorf("open image: %w", err)
				}
				defer f.Close()
				img = &api.Image{
					Filename:    filepath.Base(imagePath),
					ContentType: mime.TypeByExtension(filepath.Ext(imagePath)),
					Data:        f,
				}
			}
			r, err := client.Recipes.Create(cmd.Context(), in, img)
			if err != nil {
				return fmt.Errorf("create recipe: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recipe created: %s\n", r.ID)
			return nil
		},
	}
	recipeFlags(cmd, &in)
	cmd.Flags().StringVar(&imagePath, "image", "", "Image file to upload")
	return cmd
}

func newRecipesUpdateCmd() *cobra.Command {
	var in model.RecipeInput

	cmd := &cobra.Command{
		Use:   "update <recipe-id>",
		Short: "Replace a recipe you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := client.Recipes.Update(cmd.Context(), args[0], in)
			if err != nil {
				return fmt.Errorf("update recipe: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recipe updated: %s\n", r.ID)
			return nil
		},
	}
	recipeFlags(cmd, &in)
	return cmd
}

func newRecipesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <recipe-id>",
		Short: "Delete a recipe you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Recipes.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete recipe: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recipe deleted: %s\n", args[0])
			return nil
		},
	}
}

func newVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "vote <recipe-id> <up|down>",
		Short:     "Vote on a recipe; voting the same way again withdraws the vote",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(model.VoteUp), string(model.VoteDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Recipes.Vote(cmd.Context(), args[0], model.VoteType(args[1]))
			if err != nil {
				return fmt.Errorf("vote: %w", err)
			}
			if flagJSON {
				return printJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Votes: +%d/-%d", res.UpVotes, res.DownVotes)
			if res.UserVote != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (yours: %s)", res.UserVote)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
