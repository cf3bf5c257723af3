package ghost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meal-subscription/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	contentPath = "/ghost/api/v3/content/posts/"
	adminPath   = "/ghost/api/v3/admin/posts/"
	adminAud    = "/v3/admin/"
)

// Post is a blog post as returned by both Ghost APIs.
type Post struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HTML        string `json:"html"`
	Status      string `json:"status,omitempty"`
	UpdatedAt   string `json:"updated_at"`
	PublishedAt string `json:"published_at,omitempty"`
}

// PostsResponse wraps posts in the envelope Ghost uses for reads and writes.
type PostsResponse struct {
	Posts []Post `json:"posts"`
}

type postInput struct {
	Title  string   `json:"title"`
	HTML   string   `json:"html"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
}

// APIError is a non-success answer from Ghost.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ghost api error: status %d", e.Status)
	}
	return fmt.Sprintf("ghost api error: status %d, body: %s", e.Status, e.Body)
}

// Client reads vendor menu posts and publishes new ones.
type Client interface {
	FetchPosts(ctx context.Context, tag string, limit int) ([]Post, error)
	CreatePost(ctx context.Context, title, html string, tags []string, publish bool) (*Post, error)
}

type ghostClient struct {
	httpClient *http.Client
	baseURL    string
	contentKey string
	adminKey   string
}

// NewClient creates a Ghost client from the vendor feed settings.
func NewClient(cfg *config.Config) Client {
	return &ghostClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.GhostURL, "/"),
		contentKey: cfg.GhostContentKey,
		adminKey:   cfg.GhostAdminKey,
	}
}

// FetchPosts returns the newest posts carrying tag. An empty tag matches all posts.
func (c *ghostClient) FetchPosts(ctx context.Context, tag string, limit int) ([]Post, error) {
	q := url.Values{"key": {c.contentKey}, "order": {"published_at desc"}}
	if tag != "" {
		q.Set("filter", "tag:"+tag)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out PostsResponse
	if err := c.do(ctx, http.MethodGet, contentPath+"?"+q.Encode(), "", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	return out.Posts, nil
}

// CreatePost creates a draft, or a published post when publish is set.
func (c *ghostClient) CreatePost(ctx context.Context, title, html string, tags []string, publish bool) (*Post, error) {
	token, err := c.adminToken(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create admin token: %w", err)
	}

	in := postInput{Title: title, HTML: html, Status: "draft", Tags: tags}
	if publish {
		in.Status = "published"
	}
	body, err := json.Marshal(map[string][]postInput{"posts": {in}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}

	var out PostsResponse
	if err := c.do(ctx, http.MethodPost, adminPath+"?source=html", "Ghost "+token, body, &out); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	if len(out.Posts) == 0 {
		return nil, fmt.Errorf("no post returned from api")
	}
	return &out.Posts[0], nil
}

func (c *ghostClient) do(ctx context.Context, method, path, auth string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// adminToken signs a five minute HS256 token from an "id:hexsecret" admin key.
func (c *ghostClient) adminToken(now time.Time) (string, error) {
	id, secretHex, ok := strings.Cut(c.adminKey, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("invalid admin key format: expected id:secret")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		Audience:  jwt.ClaimStrings{adminAud},
	})
	token.Header["kid"] = id
	return token.SignedString(secret)
}
