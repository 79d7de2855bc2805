package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// User is the read-only projection the directory service exposes.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Branch is the read-only projection of an office branch.
type Branch struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory looks up users and branches owned by the back-office service.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetBranch(ctx context.Context, id int64) (*Branch, error)
}

type client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client against the back-office service.
func NewClient(baseURL string) Directory {
	return &client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// GetUser fetches a user by id.
func (c *client) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	if err := c.getJSON(ctx, fmt.Sprintf("/internal/users/%d", id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetBranch fetches a branch by id.
func (c *client) GetBranch(ctx context.Context, id int64) (*Branch, error) {
	var branch Branch
	if err := c.getJSON(ctx, fmt.Sprintf("/internal/branches/%d", id), &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (c *client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory lookup %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
