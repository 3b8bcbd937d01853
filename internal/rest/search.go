package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dropdeck/dropdeck/internal/model"
)

// Search runs a global search across messages, files and groups.
func (c *Client) Search(ctx context.Context, query string) (model.SearchResults, error) {
	q := url.Values{}
	q.Set("q", query)
	data, err := c.doJSON(ctx, http.MethodGet, "/api/search", q, nil)
	if err != nil {
		return model.SearchResults{}, err
	}
	resp, err := decodeJSON[struct {
		Messages []wireMessage `json:"messages"`
		Files    []wireFile    `json:"files"`
		Groups   []wireGroup   `json:"groups"`
	}](data)
	if err != nil {
		return model.SearchResults{}, err
	}
	var out model.SearchResults
	for _, m := range resp.Messages {
		out.Messages = append(out.Messages, m.toModel())
	}
	for _, f := range resp.Files {
		out.Files = append(out.Files, f.toModel())
	}
	for _, g := range resp.Groups {
		out.Conversations = append(out.Conversations, g.toModel())
	}
	return out, nil
}
