// Package github is a minimal client for the GitHub REST API, covering the
// three collections the reconciler ingests: commits, issues, and releases.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// ErrUpstreamUnavailable is returned when GitHub cannot be reached or
// rejects the request (network failure, bad credentials, rate limiting).
var ErrUpstreamUnavailable = errors.New("github api unavailable")

// Client fetches repository activity from the GitHub API.
type Client struct {
	baseURL string
	token   string
	owner   string
	repo    string
	client  *http.Client
}

// Config holds GitHub client settings.
type Config struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Token is the personal access token used for authentication.
	Token string

	// Owner and Repo identify the monitored repository.
	Owner string
	Repo  string

	// Timeout bounds each outbound request. Zero means 30s.
	Timeout time.Duration
}

// NewClient creates a GitHub API client for one owner/repo pair.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		client:  &http.Client{Timeout: timeout},
	}
}

// Repo returns the monitored repository name.
func (c *Client) Repo() string {
	return c.repo
}

// Commit is one entry of the repository commits collection.
// Raw carries the verbatim upstream payload.
type Commit struct {
	SHA     string
	Message string
	Author  string
	HTMLURL string
	Raw     json.RawMessage
}

// Issue is one entry of the repository issues collection.
type Issue struct {
	Number  int
	Title   string
	Body    string
	Author  string
	HTMLURL string
	Raw     json.RawMessage
}

// Release is one entry of the repository releases collection.
type Release struct {
	TagName string
	Name    string
	Body    string
	Author  string
	HTMLURL string
	Raw     json.RawMessage
}

// Commits fetches the current default page of commits.
func (c *Client) Commits(ctx context.Context) ([]Commit, error) {
	items, err := c.fetch(ctx, "commits")
	if err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(items))
	for _, raw := range items {
		var w struct {
			SHA    string `json:"sha"`
			Commit struct {
				Message string `json:"message"`
				Author  struct {
					Name string `json:"name"`
				} `json:"author"`
			} `json:"commit"`
			HTMLURL string `json:"html_url"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode commit: %w", err)
		}
		commits = append(commits, Commit{
			SHA:     w.SHA,
			Message: w.Commit.Message,
			Author:  w.Commit.Author.Name,
			HTMLURL: w.HTMLURL,
			Raw:     raw,
		})
	}
	return commits, nil
}

// Issues fetches the current default page of issues.
func (c *Client) Issues(ctx context.Context) ([]Issue, error) {
	items, err := c.fetch(ctx, "issues")
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(items))
	for _, raw := range items {
		var w struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
			Body   string `json:"body"`
			User   struct {
				Login string `json:"login"`
			} `json:"user"`
			HTMLURL string `json:"html_url"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode issue: %w", err)
		}
		issues = append(issues, Issue{
			Number:  w.Number,
			Title:   w.Title,
			Body:    w.Body,
			Author:  w.User.Login,
			HTMLURL: w.HTMLURL,
			Raw:     raw,
		})
	}
	return issues, nil
}

// Releases fetches the current default page of releases.
func (c *Client) Releases(ctx context.Context) ([]Release, error) {
	items, err := c.fetch(ctx, "releases")
	if err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(items))
	for _, raw := range items {
		var w struct {
			TagName string `json:"tag_name"`
			Name    string `json:"name"`
			Body    string `json:"body"`
			Author  struct {
				Login string `json:"login"`
			} `json:"author"`
			HTMLURL string `json:"html_url"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode release: %w", err)
		}
		releases = append(releases, Release{
			TagName: w.TagName,
			Name:    w.Name,
			Body:    w.Body,
			Author:  w.Author.Login,
			HTMLURL: w.HTMLURL,
			Raw:     raw,
		})
	}
	return releases, nil
}

// fetch performs one authenticated GET for the given resource kind and
// returns the collection items with their payloads intact.
func (c *Client) fetch(ctx context.Context, kind string) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/%s", c.baseURL, c.owner, c.repo, kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUpstreamUnavailable, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if readErr != nil {
			return nil, fmt.Errorf("%w: fetch %s: status %d", ErrUpstreamUnavailable, kind, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: fetch %s: status %d: %s", ErrUpstreamUnavailable, kind, resp.StatusCode, string(body))
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", kind, err)
	}
	return items, nil
}
