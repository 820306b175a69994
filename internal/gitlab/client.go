// Package gitlab reads the data repository through the GitLab v4 REST API.
package gitlab

import (
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

	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/source"
)

const (
	// PerPage is the maximum page size the tree endpoint accepts.
	PerPage = 100

	tokenHeader = "PRIVATE-TOKEN"
)

// ErrMissingToken short-circuits every call made without credentials.
var ErrMissingToken = errors.New("gitlab: access token is empty")

// StatusError is a non-2xx response.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab %s: status %d", e.Op, e.Code)
}

// Client is an HTTP client for one repository at one branch.
type Client struct {
	baseURL    string
	repoID     string
	branch     string
	token      string
	httpClient *http.Client
	log        *zap.Logger

	mu       sync.Mutex
	resolved string
}

// Ensure Client implements Source and Diagnoser.
var (
	_ source.Source    = (*Client)(nil)
	_ source.Diagnoser = (*Client)(nil)
)

// init registers the GitLab source in the source registry.
func init() {
	source.Register(config.SourceGitLab, func(_ context.Context, cfg config.Config, log *zap.Logger) (source.Source, error) {
		return NewClient(cfg.DataRepo.BaseURL, cfg.DataRepo.ID, cfg.DataRepo.Branch, cfg.DataRepo.Token.Value(), log), nil
	})
}

// NewClient creates a new GitLab API client.
func NewClient(baseURL, repoID, branch, token string, log *zap.Logger) *Client {
	if branch == "" {
		branch = config.DefaultBranch
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		repoID:  repoID,
		branch:  branch,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.Named("gitlab"),
	}
}

// Name returns the source name.
func (c *Client) Name() string { return "gitlab" }

// idEncodings returns the repository identifier raw, percent-encoded and
// with only slashes escaped, without duplicates.
func idEncodings(id string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range []string{id, url.PathEscape(id), strings.ReplaceAll(id, "/", "%2F")} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ListTree returns every blob path at the branch. Each identifier encoding is
// tried in turn; the first that answers 2xx wins and is reused by FetchFile.
func (c *Client) ListTree(ctx context.Context) ([]string, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	var lastErr error
	for _, id := range idEncodings(c.repoID) {
		paths, err := c.listTree(ctx, id)
		if err == nil {
			c.mu.Lock()
			c.resolved = id
			c.mu.Unlock()
			return paths, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.LogError(c.log, c.Name(), "tree", err)
		lastErr = err
	}
	return nil, fmt.Errorf("list tree: %w", lastErr)
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func (c *Client) listTree(ctx context.Context, id string) ([]string, error) {
	var paths []string
	page := "1"

	for page != "" {
		params := url.Values{}
		params.Set("ref", c.branch)
		params.Set("recursive", "true")
		params.Set("per_page", strconv.Itoa(PerPage))
		params.Set("page", page)
		fullURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/tree?%s", c.baseURL, id, params.Encode())

		var entries []treeEntry
		next, err := c.getJSON(ctx, "tree", fullURL, &entries)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type == "blob" {
				paths = append(paths, e.Path)
			}
		}
		page = next
	}
	return paths, nil
}

// FetchFile returns the raw bytes of one file at the branch.
func (c *Client) FetchFile(ctx context.Context, path string) ([]byte, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	fullURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s/raw?ref=%s",
		c.baseURL, c.projectID(), url.PathEscape(path), url.QueryEscape(c.branch))

	start := time.Now()
	logging.LogRequest(c.log, c.Name(), http.MethodGet, fullURL, zap.String("path", path))

	resp, err := c.do(ctx, fullURL)
	if err != nil {
		logging.LogError(c.log, c.Name(), "fetch", err)
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{Op: "fetch " + path, Code: resp.StatusCode}
		logging.LogError(c.log, c.Name(), "fetch", err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	logging.LogResponse(c.log, c.Name(), resp.StatusCode, time.Since(start), len(body))
	return body, nil
}

// AccessibleProjects lists the projects the token is a member of.
func (c *Client) AccessibleProjects(ctx context.Context) ([]source.Project, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	params := url.Values{}
	params.Set("membership", "true")
	params.Set("simple", "true")
	params.Set("per_page", strconv.Itoa(PerPage))
	fullURL := fmt.Sprintf("%s/api/v4/projects?%s", c.baseURL, params.Encode())

	var projects []source.Project
	if _, err := c.getJSON(ctx, "projects", fullURL, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) projectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != "" {
		return c.resolved
	}
	return url.PathEscape(c.repoID)
}

// getJSON decodes a 2xx JSON response into out and returns the X-Next-Page
// header.
func (c *Client) getJSON(ctx context.Context, op, fullURL string, out any) (string, error) {
	start := time.Now()
	logging.LogRequest(c.log, c.Name(), http.MethodGet, fullURL)

	resp, err := c.do(ctx, fullURL)
	if err != nil {
		return "", fmt.Errorf("gitlab %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Op: op, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("decode gitlab %s: %w", op, err)
	}
	logging.LogResponse(c.log, c.Name(), resp.StatusCode, time.Since(start), 0)
	return strings.TrimSpace(resp.Header.Get("X-Next-Page")), nil
}

func (c *Client) do(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	return c.httpClient.Do(req)
}
