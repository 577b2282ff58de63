package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/me/gochef/pkg/model"
)

// Favorites manages the caller's favorite recipes.
type Favorites struct {
	d       Doer
	recipes *Recipes
	logger  *slog.Logger
}

// NewFavorites creates a Favorites client. recipes is used by SaveGenerated.
func NewFavorites(d Doer, recipes *Recipes, logger *slog.Logger) *Favorites {
	return &Favorites{d: d, recipes: recipes, logger: logger.With("component", "api.favorites")}
}

// List returns the caller's favorites.
func (f *Favorites) List(ctx context.Context) ([]model.Recipe, error) {
	var out []model.Recipe
	if err := call(ctx, f.d, http.MethodGet, "/favorites", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Toggle flips the favorite mark on a recipe and returns the new state.
func (f *Favorites) Toggle(ctx context.Context, id string) (bool, error) {
	var out model.FavoriteStatus
	if err := call(ctx, f.d, http.MethodPost, "/favorites/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return false, err
	}
	return out.IsFavorite, nil
}

// Remove unmarks a recipe.
func (f *Favorites) Remove(ctx context.Context, id string) error {
	return call(ctx, f.d, http.MethodDelete, "/favorites/"+url.PathEscape(id), nil, nil, nil)
}

// Check reports whether a recipe is a favorite. Any failure reads as false.
func (f *Favorites) Check(ctx context.Context, id string) bool {
	var out model.FavoriteStatus
	if err := call(ctx, f.d, http.MethodGet, "/favorites/check/"+url.PathEscape(id), nil, nil, &out); err != nil {
		f.logger.Debug("favorite check failed", "recipe", id, "error", err)
		return false
	}
	return out.IsFavorite
}

// SaveGenerated stores a generated meal as a recipe and marks it favorite.
func (f *Favorites) SaveGenerated(ctx context.Context, g *model.GeneratedRecipe) (*model.Recipe, error) {
	if g == nil || g.MealName == "" {
		return nil, model.NewValidationError("generated recipe has no name", model.FieldError{Field: "mealName", Message: "required"})
	}
	saved, err := f.recipes.Save(ctx, g.ToInput())
	if err != nil {
		return nil, fmt.Errorf("save generated recipe: %w", err)
	}
	if saved.ID == "" {
		return nil, fmt.Errorf("save generated recipe: reply has no id")
	}
	fav, err := f.Toggle(ctx, saved.ID)
	if err != nil {
		return saved, fmt.Errorf("favorite recipe %s: %w", saved.ID, err)
	}
	saved.IsFavorite = fav
	return saved, nil
}
