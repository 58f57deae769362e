package github

import (
	"strings"
	"time"
)

// Commit is one entry of a repository's commit list.
type Commit struct {
	SHA        string
	Message    string
	AuthorName string // git author name from the commit itself
	Login      string // GitHub account of the author, if linked
	Timestamp  time.Time
	URL        string
}

// PullRequest is one entry of a repository's pull request list.
type PullRequest struct {
	ID        int64
	Number    int
	Title     string
	Author    string
	State     string // open, closed
	Merged    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
	MergedAt  time.Time
	URL       string
}

// Issue is one entry of a repository's issue list.
type Issue struct {
	ID            int64
	Number        int
	Title         string
	Author        string
	State         string // open, closed
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      time.Time
	URL           string
	IsPullRequest bool
}

// Release is one entry of a repository's release list.
type Release struct {
	ID          int64
	TagName     string
	Name        string
	Author      string
	PublishedAt time.Time
	Draft       bool
	Prerelease  bool
	URL         string
}

// Pull request and issue states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// isPullRequestURL reports whether an issue link points at a pull request.
// The issues listing includes pull requests; their html_url has a /pull/ segment.
func isPullRequestURL(url string) bool {
	return strings.Contains(url, "/pull/")
}
