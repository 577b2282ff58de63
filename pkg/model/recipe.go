package model

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Macros holds per-serving nutrition values.
type Macros struct {
	Calories     decimal.Decimal `json:"calories"`
	ProteinGrams decimal.Decimal `json:"proteinGrams"`
	CarbsGrams   decimal.Decimal `json:"carbsGrams"`
	FatGrams     decimal.Decimal `json:"fatGrams"`
}

// MarshalJSON writes the values as JSON numbers; the backend rejects quoted decimals.
func (m Macros) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.Number{
		"calories":     json.Number(m.Calories.String()),
		"proteinGrams": json.Number(m.ProteinGrams.String()),
		"carbsGrams":   json.Number(m.CarbsGrams.String()),
		"fatGrams":     json.Number(m.FatGrams.String()),
	})
}

// Author identifies the creator of a recipe.
type Author struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Recipe is a stored recipe as returned by the recipe backend.
type Recipe struct {
	ID              string    `json:"id"`
	Title           string    `json:"title,omitempty"`
	MealName        string    `json:"mealName,omitempty"`
	Description     string    `json:"description,omitempty"`
	Instructions    string    `json:"instructions,omitempty"`
	Ingredients     []string  `json:"ingredients,omitempty"`
	IngredientsUsed []string  `json:"ingredientsUsed,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	AIGenerated     bool      `json:"aiGenerated,omitempty"`
	PrepTimeMinutes int       `json:"prepTimeMinutes,omitempty"`
	Macros          *Macros   `json:"macros,omitempty"`
	Author          *Author   `json:"author,omitempty"`
	UpVotes         int       `json:"upvotes,omitempty"`
	DownVotes       int       `json:"downvotes,omitempty"`
	CommentCount    int       `json:"commentCount,omitempty"`
	IsFavorite      bool      `json:"isFavorite,omitempty"`
	UserVote        VoteType  `json:"userVote,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

// Name returns the display title, whichever field the backend filled.
func (r *Recipe) Name() string {
	if r.Title != "" {
		return r.Title
	}
	return r.MealName
}

// RecipeInput is the body used to save or update a recipe.
type RecipeInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Instructions string   `json:"instructions"`
	Ingredients  []string `json:"ingredients"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Macros       *Macros  `json:"macros,omitempty"`
}

// GenerateRequest asks the recipe backend to invent a meal.
type GenerateRequest struct {
	Ingredients        []string `json:"ingredients"`
	DietaryPreferences []string `json:"dietaryPreferences,omitempty"`
	CuisineType        string   `json:"cuisineType,omitempty"`
}

// Nutrition is the free-text nutrition block of a generated meal ("250 kcal").
type Nutrition struct {
	Calories      string `json:"calories"`
	Protein       string `json:"protein"`
	Carbohydrates string `json:"carbohydrates"`
	Fat           string `json:"fat"`
}

// RecipeDetails is the structured body of a generated meal.
type RecipeDetails struct {
	IngredientsList    []string  `json:"ingredientsList"`
	EquipmentNeeded    []string  `json:"equipmentNeeded"`
	Instructions       []string  `json:"instructions"`
	ServingSuggestions []string  `json:"servingSuggestions"`
	Nutrition          Nutrition `json:"nutritionalInformation"`

	// Text is set instead of the structured fields when the generator
	// answered with plain prose.
	Text string `json:"-"`
}

// UnmarshalJSON accepts either the structured object or a bare string.
func (d *RecipeDetails) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = RecipeDetails{Text: s}
		return nil
	}
	type plain RecipeDetails
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = RecipeDetails(p)
	return nil
}

// GeneratedRecipe is an unsaved meal produced by the generator.
type GeneratedRecipe struct {
	MealName        string        `json:"mealName"`
	ImageURL        string        `json:"imageUrl,omitempty"`
	IngredientsUsed []string      `json:"ingredientsUsed"`
	Details         RecipeDetails `json:"recipeDetails"`
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// ParseNutrient extracts the leading number of a free-text nutrition value
// such as "250 kcal" or "12g". Unparseable or empty input yields zero.
func ParseNutrient(s string) decimal.Decimal {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d.Truncate(0)
}

// ToInput converts a generated meal into a saveable recipe body.
func (g *GeneratedRecipe) ToInput() RecipeInput {
	in := RecipeInput{
		Title:       g.MealName,
		Ingredients: g.IngredientsUsed,
		ImageURL:    g.ImageURL,
		Macros:      &Macros{},
	}
	if g.Details.Text != "" {
		in.Instructions = g.Details.Text
		return in
	}
	in.Instructions = strings.Join(g.Details.Instructions, "\n")
	in.Description = strings.Join(g.Details.ServingSuggestions, " ")
	in.Macros = &Macros{
		Calories:     ParseNutrient(g.Details.Nutrition.Calories),
		ProteinGrams: ParseNutrient(g.Details.Nutrition.Protein),
		CarbsGrams:   ParseNutrient(g.Details.Nutrition.Carbohydrates),
		FatGrams:     ParseNutrient(g.Details.Nutrition.Fat),
	}
	return in
}

// VoteType is the direction of a recipe vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether v is a known vote direction.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// VoteResult is the tally after a vote.
type VoteResult struct {
	UpVotes   int      `json:"upvotes"`
	DownVotes int      `json:"downvotes"`
	UserVote  VoteType `json:"userVote,omitempty"`
}

// Comment is a user comment on a recipe.
type Comment struct {
	ID        string    `json:"id"`
	RecipeID  string    `json:"recipeId,omitempty"`
	Content   string    `json:"content"`
	Author    *Author   `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// FavoriteStatus is the reply of favorite toggle and check calls.
type FavoriteStatus struct {
	IsFavorite bool `json:"isFavorite"`
}
