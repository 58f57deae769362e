// Package github provides the read-only GitHub activity client used by the watcher.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/user/repowatch/pkg/logger"
)

// Page sizes for each resource. Only the most recent page is ever read.
const (
	CommitPageSize      = 5
	PullRequestPageSize = 10
	IssuePageSize       = 10
	ReleasePageSize     = 5
)

// DefaultUserAgent identifies the watcher to the GitHub API.
const DefaultUserAgent = "Discord-Bot-GitHub-Watcher"

// Options configures a Client.
type Options struct {
	Token     string        // optional; raises the rate limit ceiling
	UserAgent string        // defaults to DefaultUserAgent
	BaseURL   string        // defaults to https://api.github.com/
	Timeout   time.Duration // per-request HTTP timeout, 0 for none
}

// Client wraps the GitHub API client.
type Client struct {
	client *github.Client
}

// NewClient creates a new GitHub API client.
// If no token is set, an unauthenticated client is created (with lower rate limits).
func NewClient(opts Options) (*Client, error) {
	httpClient := &http.Client{Timeout: opts.Timeout}

	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: opts.Token},
		)
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = opts.Timeout
	}

	client := github.NewClient(httpClient)

	client.UserAgent = opts.UserAgent
	if client.UserAgent == "" {
		client.UserAgent = DefaultUserAgent
	}

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Client{client: client}, nil
}

// ListCommits returns the latest commits, newest first.
func (c *Client) ListCommits(ctx context.Context, repoID string) Result[Commit] {
	owner, name, err := splitRepo(repoID)
	if err != nil {
		return failed[Commit](err)
	}

	commits, _, err := c.client.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: CommitPageSize},
	})
	if err != nil {
		return fetchFailed[Commit](repoID, "commits", err)
	}

	items := make([]Commit, 0, len(commits))
	for _, commit := range commits {
		items = append(items, Commit{
			SHA:        commit.GetSHA(),
			Message:    commit.GetCommit().GetMessage(),
			AuthorName: commit.GetCommit().GetAuthor().GetName(),
			Login:      commit.GetAuthor().GetLogin(),
			Timestamp:  commit.GetCommit().GetAuthor().GetDate().Time,
			URL:        commit.GetHTMLURL(),
		})
	}
	return ok(items)
}

// ListPullRequests returns the most recently updated pull requests in any state.
func (c *Client) ListPullRequests(ctx context.Context, repoID string) Result[PullRequest] {
	owner, name, err := splitRepo(repoID)
	if err != nil {
		return failed[PullRequest](err)
	}

	prs, _, err := c.client.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: PullRequestPageSize},
	})
	if err != nil {
		return fetchFailed[PullRequest](repoID, "pull requests", err)
	}

	items := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		mergedAt := pr.GetMergedAt().Time
		items = append(items, PullRequest{
			ID:     pr.GetID(),
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Author: pr.GetUser().GetLogin(),
			State:  pr.GetState(),
			// List responses omit "merged"; merged_at is always present.
			Merged:    pr.GetMerged() || !mergedAt.IsZero(),
			CreatedAt: pr.GetCreatedAt().Time,
			UpdatedAt: pr.GetUpdatedAt().Time,
			ClosedAt:  pr.GetClosedAt().Time,
			MergedAt:  mergedAt,
			URL:       pr.GetHTMLURL(),
		})
	}
	return ok(items)
}

// ListIssues returns the most recently updated issues in any state.
// Pull requests present in the listing are kept but flagged.
func (c *Client) ListIssues(ctx context.Context, repoID string) Result[Issue] {
	owner, name, err := splitRepo(repoID)
	if err != nil {
		return failed[Issue](err)
	}

	issues, _, err := c.client.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: IssuePageSize},
	})
	if err != nil {
		return fetchFailed[Issue](repoID, "issues", err)
	}

	items := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		items = append(items, Issue{
			ID:            issue.GetID(),
			Number:        issue.GetNumber(),
			Title:         issue.GetTitle(),
			Author:        issue.GetUser().GetLogin(),
			State:         issue.GetState(),
			CreatedAt:     issue.GetCreatedAt().Time,
			UpdatedAt:     issue.GetUpdatedAt().Time,
			ClosedAt:      issue.GetClosedAt().Time,
			URL:           issue.GetHTMLURL(),
			IsPullRequest: issue.IsPullRequest() || isPullRequestURL(issue.GetHTMLURL()),
		})
	}
	return ok(items)
}

// ListReleases returns the latest releases, newest first.
func (c *Client) ListReleases(ctx context.Context, repoID string) Result[Release] {
	owner, name, err := splitRepo(repoID)
	if err != nil {
		return failed[Release](err)
	}

	releases, _, err := c.client.Repositories.ListReleases(ctx, owner, name, &github.ListOptions{PerPage: ReleasePageSize})
	if err != nil {
		return fetchFailed[Release](repoID, "releases", err)
	}

	items := make([]Release, 0, len(releases))
	for _, release := range releases {
		items = append(items, Release{
			ID:          release.GetID(),
			TagName:     release.GetTagName(),
			Name:        release.GetName(),
			Author:      release.GetAuthor().GetLogin(),
			PublishedAt: release.GetPublishedAt().Time,
			Draft:       release.GetDraft(),
			Prerelease:  release.GetPrerelease(),
			URL:         release.GetHTMLURL(),
		})
	}
	return ok(items)
}

// ValidateRepository checks if a repository exists and is accessible.
func (c *Client) ValidateRepository(ctx context.Context, owner, repo string) (bool, error) {
	_, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			return false, fmt.Errorf("rate limit exceeded")
		}
		// Repository not found or private
		return false, nil
	}
	return true, nil
}

// RateLimit is the core API quota snapshot.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// GetRateLimit returns the current core rate limit status.
func (c *Client) GetRateLimit(ctx context.Context) (*RateLimit, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, err
	}
	if limits == nil || limits.Core == nil {
		return nil, fmt.Errorf("rate limit response has no core quota")
	}
	return &RateLimit{
		Limit:     limits.Core.Limit,
		Remaining: limits.Core.Remaining,
		Reset:     limits.Core.Reset.Time,
	}, nil
}

func splitRepo(repoID string) (owner, name string, err error) {
	owner, name, found := strings.Cut(repoID, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository id %q", repoID)
	}
	return owner, name, nil
}

// fetchFailed logs a failed listing and turns it into a failed result.
func fetchFailed[T any](repoID, resource string, err error) Result[T] {
	event := logger.Warn().Err(err).Str("repo", repoID).Str("resource", resource)

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		event = event.Int("status", errResp.Response.StatusCode)
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		event = event.Time("rate_reset", rateErr.Rate.Reset.Time)
	}

	event.Msg("Failed to fetch from GitHub")
	return failed[T](fmt.Errorf("fetching %s for %s: %w", resource, repoID, err))
}
