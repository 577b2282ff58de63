package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/me/gochef/internal/httpclient"
	"github.com/me/gochef/pkg/model"
)

// DefaultRecipeCacheTTL is how long recipe reads are reused.
const DefaultRecipeCacheTTL = 2 * time.Minute

// Image is an optional upload attached to a new recipe.
type Image struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// Recipes calls the recipe backend. Reads are cached briefly and every
// mutation invalidates the affected entries.
type Recipes struct {
	d      Doer
	lists  *ttlCache[[]model.Recipe]
	items  *ttlCache[*model.Recipe]
	logger *slog.Logger
}

// NewRecipes creates a Recipes client. A zero ttl uses DefaultRecipeCacheTTL.
func NewRecipes(d Doer, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Recipes {
	if ttl <= 0 {
		ttl = DefaultRecipeCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Recipes{
		d:      d,
		lists:  newTTLCache[[]model.Recipe](ttl, now),
		items:  newTTLCache[*model.Recipe](ttl, now),
		logger: logger.With("component", "api.recipes"),
	}
}

// Generate asks the backend to invent a meal from ingredients.
func (r *Recipes) Generate(ctx context.Context, req model.GenerateRequest) (*model.GeneratedRecipe, error) {
	if len(req.Ingredients) == 0 {
		return nil, model.NewValidationError("at least one ingredient is required",
			model.FieldError{Field: "ingredients", Message: "required"})
	}
	var out model.GeneratedRecipe
	if err := call(ctx, r.d, http.MethodPost, "/recipes/generate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns all recipes visible to the caller.
func (r *Recipes) List(ctx context.Context, query url.Values) ([]model.Recipe, error) {
	key := "recipes?" + query.Encode()
	if v, ok := r.lists.get(key); ok {
		return v, nil
	}
	var out []model.Recipe
	if err := call(ctx, r.d, http.MethodGet, "/recipes", query, nil, &out); err != nil {
		return nil, err
	}
	r.lists.put(key, out)
	return out, nil
}

// Get fetches one recipe.
func (r *Recipes) Get(ctx context.Context, id string) (*model.Recipe, error) {
	if v, ok := r.items.get(id); ok {
		return v, nil
	}
	var out model.Recipe
	if err := call(ctx, r.d, http.MethodGet, "/recipes/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	r.items.put(id, &out)
	return &out, nil
}

// Mine returns the caller's own recipes.
func (r *Recipes) Mine(ctx context.Context) ([]model.Recipe, error) {
	var out []model.Recipe
	if err := call(ctx, r.d, http.MethodGet, "/recipes/my-recipes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Feed returns one page of the public recipe feed.
func (r *Recipes) Feed(ctx context.Context, opts model.PageOptions) (*model.Page[model.Recipe], error) {
	opts.Clamp()
	q := url.Values{
		"page": {strconv.Itoa(opts.Page)},
		"size": {strconv.Itoa(opts.Size)},
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	var out model.Page[model.Recipe]
	if err := call(ctx, r.d, http.MethodGet, "/recipes/feed", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create uploads a new recipe as multipart form data: the JSON body in the
// "request" part and an optional "image" file.
func (r *Recipes) Create(ctx context.Context, in model.RecipeInput, img *Image) (*model.Recipe, error) {
	if in.Title == "" {
		return nil, model.NewValidationError("title is required", model.FieldError{Field: "title", Message: "required"})
	}
	body, contentType, err := encodeRecipeForm(in, img)
	if err != nil {
		return nil, err
	}
	resp, err := r.d.Do(ctx, &httpclient.Request{
		Method:      http.MethodPost,
		Path:        Prefix + "/recipes/create-meal",
		RawBody:     body,
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}
	r.lists.clear()
	var out model.Recipe
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func encodeRecipeForm(in model.RecipeInput, img *Image) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="request"`)
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create request part: %w", err)
	}
	if err := json.NewEncoder(part).Encode(in); err != nil {
		return nil, "", fmt.Errorf("encode recipe: %w", err)
	}

	if img != nil && img.Data != nil {
		ih := make(textproto.MIMEHeader)
		ih.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ih.Set("Content-Type", ct)
		ip, err := mw.CreatePart(ih)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := io.Copy(ip, img.Data); err != nil {
			return nil, "", fmt.Errorf("copy image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// Save stores an already-built recipe, typically a generated one.
func (r *Recipes) Save(ctx context.Context, in model.RecipeInput) (*model.Recipe, error) {
	var out model.Recipe
	if err := call(ctx, r.d, http.MethodPost, "/recipes/save", nil, in, &out); err != nil {
		return nil, err
	}
	r.lists.clear()
	return &out, nil
}

// Update replaces a recipe's fields.
func (r *Recipes) Update(ctx context.Context, id string, in model.RecipeInput) (*model.Recipe, error) {
	var out model.Recipe
	if err := call(ctx, r.d, http.MethodPut, "/recipes/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, err
	}
	r.invalidate(id)
	return &out, nil
}

// Delete removes a recipe.
func (r *Recipes) Delete(ctx context.Context, id string) error {
	if err := call(ctx, r.d, http.MethodDelete, "/recipes/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

// Vote records an up or down vote and returns the new tally.
func (r *Recipes) Vote(ctx context.Context, id string, vote model.VoteType) (*model.VoteResult, error) {
	if !vote.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("invalid vote %q", vote),
			model.FieldError{Field: "voteType", Message: "must be up or down"})
	}
	var out model.VoteResult
	body := map[string]model.VoteType{"voteType": vote}
	if err := call(ctx, r.d, http.MethodPost, "/recipes/"+url.PathEscape(id)+"/vote", nil, body, &out); err != nil {
		return nil, err
	}
	r.items.drop(id)
	return &out, nil
}

// ClearCache drops every cached read.
func (r *Recipes) ClearCache() {
	r.lists.clear()
	r.items.clear()
	r.logger.Debug("recipe cache cleared")
}

func (r *Recipes) invalidate(id string) {
	r.items.drop(id)
	r.lists.clear()
}
