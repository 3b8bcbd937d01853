package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dropdeck/dropdeck/internal/model"
)

// ListConversations returns the groups the user belongs to.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/groups", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[struct {
		Groups []wireGroup `json:"groups"`
	}](data)
	if err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		out = append(out, g.toModel())
	}
	return out, nil
}

// MarkRead clears the unread counter of a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/groups/"+pathID(conversationID)+"/read", nil, nil)
	return err
}

// DiscoverGroups lists groups the user can join.
func (c *Client) DiscoverGroups(ctx context.Context) ([]model.Conversation, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/groups/discover", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[struct {
		Groups []wireGroup `json:"groups"`
	}](data)
	if err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		out = append(out, g.toModel())
	}
	return out, nil
}

// Access types of discoverable groups.
const (
	AccessPublic   = "public"
	AccessApproval = "approval"
)

// JoinGroup joins a public group directly or sends a join request to an
// approval-only one. It reports whether the user is now a member.
func (c *Client) JoinGroup(ctx context.Context, groupID, accessType string) (bool, error) {
	switch accessType {
	case AccessPublic, "":
		_, err := c.doJSON(ctx, http.MethodPost, "/api/groups/"+pathID(groupID)+"/join", nil, nil)
		return err == nil, err
	case AccessApproval:
		_, err := c.doJSON(ctx, http.MethodPost, "/api/groups/"+pathID(groupID)+"/request", nil, nil)
		return false, err
	default:
		return false, fmt.Errorf("unknown access type %q", accessType)
	}
}
