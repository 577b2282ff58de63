package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/me/gochef/pkg/model"
)

const maxUpload = 10 << 20

func (b *Backend) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := decodeBody(r, &req); err != nil || len(req.Ingredients) == 0 {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "at least one ingredient is required"})
		return
	}
	name := strings.TrimSpace(req.Ingredients[0])
	if req.CuisineType != "" {
		name = req.CuisineType + " " + name
	}
	respondOK(w, model.GeneratedRecipe{
		MealName:        name + " skillet",
		IngredientsUsed: req.Ingredients,
		Details: model.RecipeDetails{
			IngredientsList: req.Ingredients,
			EquipmentNeeded: []string{"skillet"},
			Instructions:    []string{"Prepare the ingredients.", "Cook everything together."},
			Nutrition: model.Nutrition{
				Calories:      "450 kcal",
				Protein:       "30g",
				Carbohydrates: "40g",
				Fat:           "12g",
			},
		},
	})
}

// newRecipeLocked stores in as a new recipe owned by u.
func (b *Backend) newRecipeLocked(u model.User, in model.RecipeInput, ai bool) *model.Recipe {
	b.nextID++
	rec := &model.Recipe{
		ID:           "r" + strconv.Itoa(b.nextID),
		Title:        in.Title,
		Description:  in.Description,
		Instructions: in.Instructions,
		Ingredients:  in.Ingredients,
		ImageURL:     in.ImageURL,
		Macros:       in.Macros,
		AIGenerated:  ai,
		Author:       &model.Author{ID: u.ID, Username: u.Username},
		CreatedAt:    b.now().UTC(),
	}
	b.recipes[rec.ID] = rec
	b.order = append(b.order, rec.ID)
	return rec
}

// viewLocked returns a copy of rec decorated for u.
func (b *Backend) viewLocked(rec *model.Recipe, u model.User) model.Recipe {
	out := *rec
	out.IsFavorite = b.favorites[u.ID][rec.ID]
	out.UserVote = b.votes[rec.ID][u.ID]
	out.UpVotes, out.DownVotes = 0, 0
	for _, v := range b.votes[rec.ID] {
		if v == model.VoteUp {
			out.UpVotes++
		} else {
			out.DownVotes++
		}
	}
	out.CommentCount = len(b.comments[rec.ID])
	return out
}

func (b *Backend) listLocked(u model.User, keep func(*model.Recipe) bool) []model.Recipe {
	out := []model.Recipe{}
	for _, id := range b.order {
		rec := b.recipes[id]
		if keep == nil || keep(rec) {
			out = append(out, b.viewLocked(rec, u))
		}
	}
	return out
}

func (b *Backend) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	q := strings.ToLower(r.URL.Query().Get("search"))
	b.mu.Lock()
	out := b.listLocked(u, func(rec *model.Recipe) bool {
		return q == "" || strings.Contains(strings.ToLower(rec.Title), q)
	})
	b.mu.Unlock()
	respondOK(w, out)
}

func (b *Backend) handleMyRecipes(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	b.mu.Lock()
	out := b.listLocked(u, func(rec *model.Recipe) bool { return rec.Author != nil && rec.Author.ID == u.ID })
	b.mu.Unlock()
	respondOK(w, out)
}

func (b *Backend) handleFeed(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 10
	}
	b.mu.Lock()
	all := b.listLocked(u, nil)
	b.mu.Unlock()
	if strings.HasSuffix(r.URL.Query().Get("sort"), ",desc") {
		sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	}

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	total := (len(all) + size - 1) / size
	respondOK(w, model.Page[model.Recipe]{
		Content:       all[start:end],
		TotalPages:    total,
		TotalElements: len(all),
		Size:          size,
		Number:        page,
		Last:          end == len(all),
	})
}

func (b *Backend) handleCreateMeal(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "multipart form expected"})
		return
	}
	var in model.RecipeInput
	raw := r.FormValue("request")
	if raw == "" {
		if fhs := r.MultipartForm.File["request"]; len(fhs) > 0 {
			f, err := fhs[0].Open()
			if err == nil {
				json.NewDecoder(f).Decode(&in)
				f.Close()
			}
		}
	} else if err := json.Unmarshal([]byte(raw), &in); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request part"})
		return
	}
	if in.Title == "" {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "title is required"})
		return
	}
	if fhs := r.MultipartForm.File["image"]; len(fhs) > 0 {
		in.ImageURL = "/images/" + fhs[0].Filename
	}
	b.mu.Lock()
	rec := b.newRecipeLocked(u, in, false)
	out := b.viewLocked(rec, u)
	b.mu.Unlock()
	respondCreated(w, out)
}

func (b *Backend) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	var in model.RecipeInput
	if err := decodeBody(r, &in); err != nil || in.Title == "" {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "title is required"})
		return
	}
	b.mu.Lock()
	rec := b.newRecipeLocked(u, in, true)
	out := b.viewLocked(rec, u)
	b.mu.Unlock()
	respondCreated(w, out)
}

// recipeOr404 loads the {id} recipe or answers 404.
func (b *Backend) recipeOr404(w http.ResponseWriter, r *http.Request) (*model.Recipe, bool) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	rec, ok := b.recipes[id]
	b.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: fmt.Sprintf("recipe %q not found", id)})
		return nil, false
	}
	return rec, true
}

func (b *Backend) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	out := b.viewLocked(rec, u)
	b.mu.Unlock()
	respondOK(w, out)
}

// ownerOr403 answers 403 unless u owns rec or is an admin.
func ownerOr403(w http.ResponseWriter, rec *model.Recipe, u model.User) bool {
	if u.IsAdmin() || (rec.Author != nil && rec.Author.ID == u.ID) {
		return true
	}
	respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: "not your recipe"})
	return false
}

func (b *Backend) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok || !ownerOr403(w, rec, u) {
		return
	}
	var in model.RecipeInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "invalid request body"})
		return
	}
	b.mu.Lock()
	if in.Title != "" {
		rec.Title = in.Title
	}
	rec.Description = in.Description
	rec.Instructions = in.Instructions
	rec.Ingredients = in.Ingredients
	if in.Macros != nil {
		rec.Macros = in.Macros
	}
	rec.UpdatedAt = b.now().UTC()
	out := b.viewLocked(rec, u)
	b.mu.Unlock()
	respondOK(w, out)
}

func (b *Backend) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok || !ownerOr403(w, rec, u) {
		return
	}
	b.mu.Lock()
	delete(b.recipes, rec.ID)
	for i, id := range b.order {
		if id == rec.ID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	delete(b.comments, rec.ID)
	delete(b.votes, rec.ID)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleVote(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	var body struct {
		VoteType model.VoteType `json:"voteType"`
	}
	if err := decodeBody(r, &body); err != nil || !body.VoteType.Valid() {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "voteType must be up or down"})
		return
	}
	b.mu.Lock()
	if b.votes[rec.ID] == nil {
		b.votes[rec.ID] = make(map[string]model.VoteType)
	}
	// Voting the same way twice withdraws the vote.
	if b.votes[rec.ID][u.ID] == body.VoteType {
		delete(b.votes[rec.ID], u.ID)
	} else {
		b.votes[rec.ID][u.ID] = body.VoteType
	}
	view := b.viewLocked(rec, u)
	b.mu.Unlock()
	respondOK(w, model.VoteResult{UpVotes: view.UpVotes, DownVotes: view.DownVotes, UserVote: view.UserVote})
}

func (b *Backend) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	b.mu.Lock()
	out := b.listLocked(u, func(rec *model.Recipe) bool { return b.favorites[u.ID][rec.ID] })
	b.mu.Unlock()
	respondOK(w, out)
}

func (b *Backend) handleCheckFavorite(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	fav := b.favorites[u.ID][id]
	b.mu.Unlock()
	respondOK(w, model.FavoriteStatus{IsFavorite: fav})
}

func (b *Backend) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	if b.favorites[u.ID] == nil {
		b.favorites[u.ID] = make(map[string]bool)
	}
	fav := !b.favorites[u.ID][rec.ID]
	if fav {
		b.favorites[u.ID][rec.ID] = true
	} else {
		delete(b.favorites[u.ID], rec.ID)
	}
	b.mu.Unlock()
	respondOK(w, model.FavoriteStatus{IsFavorite: fav})
}

func (b *Backend) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	delete(b.favorites[u.ID], id)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleListComments(w http.ResponseWriter, r *http.Request) {
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 10
	}
	b.mu.Lock()
	all := append([]model.Comment(nil), b.comments[rec.ID]...)
	b.mu.Unlock()

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	respondOK(w, model.Page[model.Comment]{
		Content:       append([]model.Comment{}, all[start:end]...),
		TotalPages:    (len(all) + size - 1) / size,
		TotalElements: len(all),
		Size:          size,
		Number:        page,
		Last:          end == len(all),
	})
}

func decodeContent(r *http.Request) (string, bool) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Content) == "" {
		return "", false
	}
	return body.Content, true
}

func (b *Backend) handleAddComment(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	content, ok := decodeContent(r)
	if !ok {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "content is required"})
		return
	}
	b.mu.Lock()
	b.nextID++
	c := model.Comment{
		ID:        "c" + strconv.Itoa(b.nextID),
		RecipeID:  rec.ID,
		Content:   content,
		Author:    &model.Author{ID: u.ID, Username: u.Username},
		CreatedAt: b.now().UTC(),
	}
	b.comments[rec.ID] = append(b.comments[rec.ID], c)
	b.mu.Unlock()
	respondCreated(w, c)
}

// commentIndexLocked finds {commentID} on rec, or -1.
func (b *Backend) commentIndexLocked(recipeID, commentID string) int {
	for i, c := range b.comments[recipeID] {
		if c.ID == commentID {
			return i
		}
	}
	return -1
}

func (b *Backend) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	content, ok := decodeContent(r)
	if !ok {
		respondError(w, http.StatusBadRequest, &model.APIError{Code: model.ErrValidation, Message: "content is required"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.commentIndexLocked(rec.ID, chi.URLParam(r, "commentID"))
	if i < 0 {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "comment not found"})
		return
	}
	c := &b.comments[rec.ID][i]
	if c.Author == nil || (c.Author.ID != u.ID && !u.IsAdmin()) {
		respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: "not your comment"})
		return
	}
	c.Content = content
	c.UpdatedAt = b.now().UTC()
	respondOK(w, *c)
}

func (b *Backend) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context()).snapshot()
	rec, ok := b.recipeOr404(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.commentIndexLocked(rec.ID, chi.URLParam(r, "commentID"))
	if i < 0 {
		respondError(w, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "comment not found"})
		return
	}
	c := b.comments[rec.ID][i]
	if c.Author == nil || (c.Author.ID != u.ID && !u.IsAdmin()) {
		respondError(w, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: "not your comment"})
		return
	}
	b.comments[rec.ID] = append(b.comments[rec.ID][:i], b.comments[rec.ID][i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// AddRecipe stores a recipe authored by username, for test setup.
func (b *Backend) AddRecipe(username string, in model.RecipeInput) model.Recipe {
	acct := b.accountByName(username)
	var u model.User
	if acct != nil {
		u = acct.snapshot()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.newRecipeLocked(u, in, false)
}
