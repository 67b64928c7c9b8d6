// Package authclient talks to the server's credential and question endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	base string
	http *http.Client
}

type Option func(c *Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Session is a logged in user.
type Session struct {
	Token    string
	Identity domain.Identity
}

type userView struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func (c *Client) Register(ctx context.Context, email, password, role string) (*domain.Identity, error) {
	req := map[string]string{"email": email, "password": password, "role": role}

	var resp struct {
		User userView `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", req, &resp); err != nil {
		return nil, err
	}

	return &domain.Identity{Email: resp.User.Email, Role: resp.User.Role}, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	req := map[string]string{"email": email, "password": password}

	var resp struct {
		Token string   `json:"token"`
		User  userView `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", req, &resp); err != nil {
		return nil, err
	}

	return &Session{
		Token:    resp.Token,
		Identity: domain.Identity{Email: resp.User.Email, Role: resp.User.Role},
	}, nil
}

func (c *Client) Questions(ctx context.Context) ([]string, error) {
	var resp struct {
		Questions []string `json:"questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/questions", "", nil, &resp); err != nil {
		return nil, err
	}

	return resp.Questions, nil
}

// do sends body as JSON and decodes a 2xx reply into out. Other replies are
// returned as *errors.Error carrying the server's code and message.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authclient: marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("authclient: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithMessage("server unreachable"), errors.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
		return errors.New(errors.CodeInternal, errors.WithMessagef("unexpected status %d", resp.StatusCode))
	}

	return &e
}
