// Package client is a Go client for the csstoy HTTP API plus Store, a local
// cache of snippet views that applies like/collect toggles optimistically
// and reconciles with the server when the two disagree.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
)

// Client talks JSON to one csstoy server. It is safe for concurrent use;
// the bearer token can be swapped at any time with SetToken.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// =========================================================================
// REQUEST / RESPONSE SHAPES
// =========================================================================

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	ResetQuestion   string `json:"resetQuestion"`
	ResetAnswer     string `json:"resetAnswer"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// SnippetRequest is the body of create and update. Nil Tags on update
// keeps the current tags.
type SnippetRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CSSContent  string   `json:"css_content"`
	HTMLContent string   `json:"html_content,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

type collectResponse struct {
	Collected        bool `json:"collected"`
	CollectionsCount int  `json:"collections_count"`
}

type visibilityResponse struct {
	IsPublic bool `json:"is_public"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =========================================================================
// AUTH
// =========================================================================

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var res AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string, remember bool) (*AuthResponse, error) {
	body := map[string]any{"email": email, "password": password, "remember": remember}
	var res AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// =========================================================================
// SNIPPETS
// =========================================================================

func (c *Client) Popular(ctx context.Context, page, limit int) (*model.SnippetPage, error) {
	return c.page(ctx, "/api/cssnippets/popular", page, limit)
}

func (c *Client) Latest(ctx context.Context, page, limit int) (*model.SnippetPage, error) {
	return c.page(ctx, "/api/cssnippets/latest", page, limit)
}

func (c *Client) page(ctx context.Context, path string, page, limit int) (*model.SnippetPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res model.SnippetPage
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.Snippet, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res []model.Snippet
	if err := c.do(ctx, http.MethodGet, "/api/cssnippets/search?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	var res model.Snippet
	if err := c.do(ctx, http.MethodGet, "/api/cssnippets/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateSnippet(ctx context.Context, req SnippetRequest) (*model.Snippet, error) {
	var res model.Snippet
	if err := c.do(ctx, http.MethodPost, "/api/cssnippets", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) UpdateSnippet(ctx context.Context, id string, req SnippetRequest) (*model.Snippet, error) {
	var res model.Snippet
	if err := c.do(ctx, http.MethodPut, "/api/cssnippets/"+url.PathEscape(id), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteSnippet(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/cssnippets/"+url.PathEscape(id), nil, nil)
}

// ToggleVisibility flips public/private and returns whether the snippet is
// now public.
func (c *Client) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	var res visibilityResponse
	if err := c.do(ctx, http.MethodPatch, "/api/cssnippets/"+url.PathEscape(id)+"/visibility", nil, &res); err != nil {
		return false, err
	}
	return res.IsPublic, nil
}

func (c *Client) Versions(ctx context.Context, id string) ([]model.SnippetVersion, error) {
	var res []model.SnippetVersion
	if err := c.do(ctx, http.MethodGet, "/api/cssnippets/"+url.PathEscape(id)+"/versions", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// =========================================================================
// LEDGER
// =========================================================================
//
// Each call returns the server's state after the mutation. A Like on a
// snippet the caller already likes fails with an error matching
// apperror.ErrConflict; Store relies on that to reconcile.

func (c *Client) Like(ctx context.Context, id string) (model.InteractionState, error) {
	return c.likeCall(ctx, http.MethodPost, id)
}

func (c *Client) Unlike(ctx context.Context, id string) (model.InteractionState, error) {
	return c.likeCall(ctx, http.MethodDelete, id)
}

func (c *Client) Collect(ctx context.Context, id string) (model.InteractionState, error) {
	return c.collectCall(ctx, http.MethodPost, id)
}

func (c *Client) Uncollect(ctx context.Context, id string) (model.InteractionState, error) {
	return c.collectCall(ctx, http.MethodDelete, id)
}

func (c *Client) likeCall(ctx context.Context, method, id string) (model.InteractionState, error) {
	var res likeResponse
	if err := c.do(ctx, method, "/api/cssnippets/"+url.PathEscape(id)+"/like", nil, &res); err != nil {
		return model.InteractionState{}, err
	}
	return model.InteractionState{Active: res.Liked, Count: res.LikesCount}, nil
}

func (c *Client) collectCall(ctx context.Context, method, id string) (model.InteractionState, error) {
	var res collectResponse
	if err := c.do(ctx, method, "/api/cssnippets/"+url.PathEscape(id)+"/collect", nil, &res); err != nil {
		return model.InteractionState{}, err
	}
	return model.InteractionState{Active: res.Collected, Count: res.CollectionsCount}, nil
}

// =========================================================================
// COMMENTS
// =========================================================================

func (c *Client) Comments(ctx context.Context, snippetID string) ([]*model.Comment, error) {
	var res []*model.Comment
	if err := c.do(ctx, http.MethodGet, "/api/comments/cssnippet/"+url.PathEscape(snippetID), nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// AddComment posts a comment, or a reply when parentID is not empty.
func (c *Client) AddComment(ctx context.Context, snippetID, content, parentID string) (*model.Comment, error) {
	body := map[string]string{"cssnippet_id": snippetID, "content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var res model.Comment
	if err := c.do(ctx, http.MethodPost, "/api/comments", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/comments/"+url.PathEscape(id), nil, nil)
}

// =========================================================================
// TRANSPORT
// =========================================================================

// do sends one request. A non-2xx answer with the standard error body
// becomes an *apperror.AppError of the matching kind, so callers use
// errors.Is(err, apperror.ErrConflict) and friends exactly as on the
// server side.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("client: building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return fmt.Errorf("client: %s %s: unexpected status %d",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
	}
	return apperror.FromKind(body.Code, body.Error)
}

// IsConflict reports whether err is the server refusing a ledger change
// because the row is already in the requested state.
func IsConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}
