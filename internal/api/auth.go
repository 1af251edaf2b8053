// Package api provides typed clients for the inventory backend's REST
// surface. All authenticated traffic goes through the gateway.
package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/pkg/models"
)

// SessionWriter is the credential surface the auth client mutates.
type SessionWriter interface {
	SetPair(ctx context.Context, pair models.TokenPair) error
	Clear(ctx context.Context) error
}

type AuthClient struct {
	gw     *gateway.Gateway
	creds  SessionWriter
	logger *logrus.Logger
}

func NewAuthClient(gw *gateway.Gateway, creds SessionWriter, logger *logrus.Logger) *AuthClient {
	return &AuthClient{gw: gw, creds: creds, logger: logger}
}

// SignupRequest carries the registration payload. All fields are required
// by the backend.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Address  string `json:"address"`
}

// Login exchanges credentials for a token pair and persists it.
func (c *AuthClient) Login(ctx context.Context, username, password string) (models.TokenPair, error) {
	var pair models.TokenPair
	payload := map[string]string{"username": username, "password": password}
	if err := c.gw.JSON(ctx, http.MethodPost, "/api/token/", payload, &pair); err != nil {
		return models.TokenPair{}, err
	}
	if err := c.creds.SetPair(ctx, pair); err != nil {
		return models.TokenPair{}, err
	}

	c.logger.WithField("username", username).Info("Logged in")
	return pair, nil
}

// Signup registers a new account. A duplicate username surfaces as a
// *gateway.ServerError with the backend's message.
func (c *AuthClient) Signup(ctx context.Context, req SignupRequest) error {
	if err := c.gw.JSON(ctx, http.MethodPost, "/register/", req, nil); err != nil {
		return err
	}
	c.logger.WithField("username", req.Username).Info("Account registered")
	return nil
}

// Me returns the current user's profile, including the admin flag.
func (c *AuthClient) Me(ctx context.Context) (models.User, error) {
	var user models.User
	if err := c.gw.JSON(ctx, http.MethodGet, "/me/", nil, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Logout discards the stored credential pair. Purely local; the backend
// keeps no session state for bearer tokens.
func (c *AuthClient) Logout(ctx context.Context) error {
	if err := c.creds.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info("Logged out")
	return nil
}
