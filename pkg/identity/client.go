// Package identity talks to the external identity provider's admin API.
// The provider owns authentication; this client only provisions accounts
// and assigns roles and groups when an admin creates a user.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/config"
)

type Client struct {
	baseURL    string
	adminToken string
	maxRetries uint
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.IdentityConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		adminToken: cfg.AdminToken,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type Account struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// CreateUser provisions an account and returns the provider's subject ID.
func (c *Client) CreateUser(ctx context.Context, account Account) (string, error) {
	var response createUserResponse
	err := c.do(ctx, http.MethodPost, "/users", account, &response)
	if err != nil {
		return "", fmt.Errorf("identity provider user creation failed: %w", err)
	}
	if response.ID == "" {
		return "", fmt.Errorf("identity provider returned no user id")
	}
	return response.ID, nil
}

// AssignRole maps a realm role onto the account.
func (c *Client) AssignRole(ctx context.Context, externalID, role string) error {
	payload := map[string]string{"role": role}
	return c.do(ctx, http.MethodPost, "/users/"+externalID+"/roles", payload, nil)
}

// AddToGroup places the account in the tenant's group.
func (c *Client) AddToGroup(ctx context.Context, externalID, group string) error {
	payload := map[string]string{"group": group}
	return c.do(ctx, http.MethodPost, "/users/"+externalID+"/groups", payload, nil)
}

// do issues one admin-API call, retrying transient failures with
// exponential backoff. 4xx responses are permanent and not retried.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.adminToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, backoff.Permanent(fmt.Errorf("identity provider rejected %s %s: %d", method, path, resp.StatusCode))
		default:
			return nil, fmt.Errorf("identity provider %s %s returned %d", method, path, resp.StatusCode)
		}
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode identity provider response: %w", err)
		}
	}
	return nil
}
