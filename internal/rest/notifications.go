package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dropdeck/dropdeck/internal/model"
)

// ListUnreadNotifications returns the user's unread notifications.
func (c *Client) ListUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	q := url.Values{}
	q.Set("unread_only", "true")
	data, err := c.doJSON(ctx, http.MethodGet, "/api/notifications", q, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[struct {
		UnreadCount   int                `json:"unread_count"`
		Notifications []wireNotification `json:"notifications"`
	}](data)
	if err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		out = append(out, n.toModel())
	}
	return out, nil
}

// MarkNotificationsRead marks the given notifications as read.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/notifications/mark-read", nil, struct {
		NotificationIDs []string `json:"notification_ids"`
	}{ids})
	return err
}

// ActOnJoinRequest accepts or declines the join request behind a notification.
func (c *Client) ActOnJoinRequest(ctx context.Context, notificationID string, decision model.JoinDecision) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/notifications/join-request/action", nil, struct {
		NotificationID string `json:"notification_id"`
		Action         string `json:"action"`
	}{notificationID, string(decision)})
	return err
}
