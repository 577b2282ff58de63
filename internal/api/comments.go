package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/me/gochef/pkg/model"
)

// Comments manages recipe comments.
type Comments struct {
	d Doer
}

// NewComments creates a Comments client.
func NewComments(d Doer) *Comments {
	return &Comments{d: d}
}

func commentsPath(recipeID string) string {
	return "/recipes/" + url.PathEscape(recipeID) + "/comments"
}

func validContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return model.NewValidationError("comment cannot be empty", model.FieldError{Field: "content", Message: "required"})
	}
	return nil
}

// List returns one page of comments on a recipe.
func (c *Comments) List(ctx context.Context, recipeID string, opts model.PageOptions) (*model.Page[model.Comment], error) {
	opts.Clamp()
	q := url.Values{"page": {strconv.Itoa(opts.Page)}, "size": {strconv.Itoa(opts.Size)}}
	var out model.Page[model.Comment]
	if err := call(ctx, c.d, http.MethodGet, commentsPath(recipeID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Add posts a comment.
func (c *Comments) Add(ctx context.Context, recipeID, content string) (*model.Comment, error) {
	if err := validContent(content); err != nil {
		return nil, err
	}
	var out model.Comment
	if err := call(ctx, c.d, http.MethodPost, commentsPath(recipeID), nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update edits a comment.
func (c *Comments) Update(ctx context.Context, recipeID, commentID, content string) (*model.Comment, error) {
	if err := validContent(content); err != nil {
		return nil, err
	}
	var out model.Comment
	path := commentsPath(recipeID) + "/" + url.PathEscape(commentID)
	if err := call(ctx, c.d, http.MethodPut, path, nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a comment.
func (c *Comments) Delete(ctx context.Context, recipeID, commentID string) error {
	return call(ctx, c.d, http.MethodDelete, commentsPath(recipeID)+"/"+url.PathEscape(commentID), nil, nil, nil)
}
