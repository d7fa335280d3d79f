// Package api is the HTTP client for the solidify server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solidify/internal/shared/models"
)

// Error is a failure reported by the server envelope.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// Receipt is the result of a mutation.
type Receipt struct {
	Operation string             `json:"operation"`
	Record    *models.Record     `json:"record,omitempty"`
	Binding   *models.NFTBinding `json:"binding,omitempty"`
	Event     *models.Event      `json:"event,omitempty"`
}

type Membership struct {
	Role    models.Role    `json:"role"`
	Address models.Address `json:"address"`
	Member  bool           `json:"member"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &Error{Status: resp.StatusCode, Message: "undecodable response: " + err.Error()}
	}
	if !env.Success || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Kind: env.Error, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func recordPath(id int64, suffix string) string {
	return "/api/v1/records/" + strconv.FormatInt(id, 10) + suffix
}

func rolePath(role models.Role, addr models.Address) string {
	return "/api/v1/roles/" + url.PathEscape(string(role)) + "/" + url.PathEscape(string(addr))
}

// Register creates an account. The client token must belong to an ADMIN.
func (c *Client) Register(ctx context.Context, address, password string) (models.Account, error) {
	var acct models.Account
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{"address": address, "password": password}, &acct)
	return acct, err
}

func (c *Client) Login(ctx context.Context, address, password string) (models.TokenResponse, error) {
	var tok models.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{"address": address, "password": password}, &tok)
	return tok, err
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenResponse, error) {
	var tok models.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, &tok)
	return tok, err
}

func (c *Client) Create(ctx context.Context, id int64, content string) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPost, "/api/v1/records", map[string]any{"id": id, "content": content}, &r)
	return r, err
}

func (c *Client) Update(ctx context.Context, id int64, content string) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPut, recordPath(id, ""), map[string]string{"content": content}, &r)
	return r, err
}

func (c *Client) Erase(ctx context.Context, id int64) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPost, recordPath(id, "/erase"), nil, &r)
	return r, err
}

func (c *Client) IssueNFT(ctx context.Context, id int64, holder string) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPost, recordPath(id, "/nft"), map[string]string{"holder": holder}, &r)
	return r, err
}

func (c *Client) Retrieve(ctx context.Context, id int64) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodGet, recordPath(id, ""), nil, &rec)
	return rec, err
}

func (c *Client) Binding(ctx context.Context, id int64) (models.NFTBinding, error) {
	var b models.NFTBinding
	err := c.do(ctx, http.MethodGet, recordPath(id, "/nft"), nil, &b)
	return b, err
}

func (c *Client) RecordEvents(ctx context.Context, id int64) ([]models.Event, error) {
	var events []models.Event
	err := c.do(ctx, http.MethodGet, recordPath(id, "/events"), nil, &events)
	return events, err
}

func (c *Client) RoleEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := c.do(ctx, http.MethodGet, "/api/v1/roles/events", nil, &events)
	return events, err
}

func (c *Client) HasRole(ctx context.Context, role models.Role, addr models.Address) (Membership, error) {
	var m Membership
	err := c.do(ctx, http.MethodGet, rolePath(role, addr), nil, &m)
	return m, err
}

func (c *Client) GrantRole(ctx context.Context, role models.Role, addr models.Address) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodPut, rolePath(role, addr), nil, &r)
	return r, err
}

func (c *Client) RevokeRole(ctx context.Context, role models.Role, addr models.Address) (Receipt, error) {
	var r Receipt
	err := c.do(ctx, http.MethodDelete, rolePath(role, addr), nil, &r)
	return r, err
}
