package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/dropdeck/dropdeck/internal/model"
)

func messagesPath(conversationID string) string {
	return "/api/messages/groups/" + pathID(conversationID) + "/messages"
}

// ListMessages returns one page of a conversation's messages in the order
// the backend sends them.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	data, err := c.doJSON(ctx, http.MethodGet, messagesPath(conversationID), q, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[struct {
		Messages []wireMessage `json:"messages"`
	}](data)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := m.toModel()
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		out = append(out, msg)
	}
	return out, nil
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

type messageResponse struct {
	Message wireMessage `json:"message"`
}

func (r messageResponse) toModel(conversationID, correlationID string) model.Message {
	m := r.Message.toModel()
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	if m.CorrelationID == "" {
		m.CorrelationID = correlationID
	}
	return m
}

// SendMessage posts a text or poll message. correlationID is echoed back
// by backends that support it.
func (c *Client) SendMessage(ctx context.Context, conversationID string, body model.Body, replyTo, correlationID string) (model.Message, error) {
	msgType, content, err := encodeBody(body)
	if err != nil {
		return model.Message{}, fmt.Errorf("encode body: %w", err)
	}
	data, err := c.doJSON(ctx, http.MethodPost, messagesPath(conversationID), nil, sendMessageRequest{
		Content:     content,
		MessageType: msgType,
		ClientMsgID: correlationID,
		ReplyTo:     replyTo,
	})
	if err != nil {
		return model.Message{}, err
	}
	resp, err := decodeJSON[messageResponse](data)
	if err != nil {
		return model.Message{}, err
	}
	return resp.toModel(conversationID, correlationID), nil
}

// UploadFile sends a file as a multipart upload and returns the resulting
// file message.
func (c *Client) UploadFile(ctx context.Context, conversationID string, up model.Upload, correlationID string) (model.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if correlationID != "" {
		if err := w.WriteField("client_msg_id", correlationID); err != nil {
			return model.Message{}, fmt.Errorf("write field: %w", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Name))
	mimeType := up.MIME
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return model.Message{}, fmt.Errorf("create part: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return model.Message{}, fmt.Errorf("copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return model.Message{}, fmt.Errorf("close multipart: %w", err)
	}

	path := "/api/messages/groups/" + pathID(conversationID) + "/files"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType())
	if err != nil {
		return model.Message{}, err
	}
	data, err := c.do(req)
	if err != nil {
		return model.Message{}, err
	}
	resp, err := decodeJSON[messageResponse](data)
	if err != nil {
		return model.Message{}, err
	}
	m := resp.toModel(conversationID, correlationID)
	if m.Body.Kind != model.KindFile {
		m.Body = model.FileBody(model.FileRef{Name: up.Name, Size: up.Size, MIME: up.MIME})
	}
	return m, nil
}
