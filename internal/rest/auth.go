package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropdeck/dropdeck/internal/model"
)

// Verify checks the current credential with the backend. An
// ErrUnauthorized error means the credential is no longer valid.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodGet, "/api/auth/verify", nil, nil)
	return err
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (model.User, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/auth/profile", nil, nil)
	if err != nil {
		return model.User{}, err
	}
	resp, err := decodeJSON[struct {
		User wireUser `json:"user"`
	}](data)
	if err != nil {
		return model.User{}, err
	}
	return resp.User.toModel(), nil
}

// LoginRequest carries sign-in credentials. CaptchaToken is passed through
// for backends that require it.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, model.User, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, req)
	if err != nil {
		return "", model.User{}, err
	}
	resp, err := decodeJSON[struct {
		Token string   `json:"token"`
		User  wireUser `json:"user"`
	}](data)
	if err != nil {
		return "", model.User{}, err
	}
	if resp.Token == "" {
		return "", model.User{}, errors.New("login response has no token")
	}
	return resp.Token, resp.User.toModel(), nil
}
