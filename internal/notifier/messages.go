package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/repowatch/internal/github"
)

// Action is the lifecycle transition a pull request or issue notification reports.
type Action string

const (
	ActionOpened Action = "opened"
	ActionClosed Action = "closed"
	ActionMerged Action = "merged"
)

// Fallbacks for optional fields missing from upstream payloads.
const (
	unknownAuthor = "unknown"
	unknownDate   = "unknown date"
	noMessage     = "(no message)"
	untitled      = "(untitled)"
)

const (
	dateLayout    = "Jan 2, 2006 15:04 MST"
	maxLineLength = 256
)

// CommitMessage formats a new commit notification.
// Only the first line of the commit message is shown.
func CommitMessage(c github.Commit, repoID string) string {
	author := firstNonEmpty(c.Login, c.AuthorName, unknownAuthor)

	message, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	message = truncateString(strings.TrimSpace(message), maxLineLength)
	if message == "" {
		message = noMessage
	}

	return fmt.Sprintf("📝 **New commit in %s**\n", repoID) +
		fmt.Sprintf("**Author:** %s\n", author) +
		fmt.Sprintf("**Message:** %s\n", message) +
		fmt.Sprintf("**SHA:** `%s`\n", shortSHA(c.SHA)) +
		fmt.Sprintf("**Date:** %s\n", formatDate(c.Timestamp)) +
		fmt.Sprintf("**Link:** %s", c.URL)
}

// PullRequestMessage formats a pull request lifecycle notification.
func PullRequestMessage(pr github.PullRequest, repoID string, action Action) string {
	emoji := "🔀"
	date := pr.CreatedAt
	switch action {
	case ActionMerged:
		emoji = "✅"
		date = firstNonZero(pr.MergedAt, pr.ClosedAt, pr.UpdatedAt)
	case ActionClosed:
		emoji = "❌"
		date = firstNonZero(pr.ClosedAt, pr.UpdatedAt)
	}

	return fmt.Sprintf("%s **Pull request %s in %s**\n", emoji, action, repoID) +
		fmt.Sprintf("**Title:** %s\n", titleOrFallback(pr.Title)) +
		fmt.Sprintf("**Author:** %s\n", firstNonEmpty(pr.Author, unknownAuthor)) +
		fmt.Sprintf("**Number:** #%d\n", pr.Number) +
		fmt.Sprintf("**Date:** %s\n", formatDate(date)) +
		fmt.Sprintf("**Link:** %s", pr.URL)
}

// IssueMessage formats an issue lifecycle notification.
func IssueMessage(issue github.Issue, repoID string, action Action) string {
	emoji := "🐛"
	date := issue.CreatedAt
	if action == ActionClosed {
		emoji = "✔️"
		date = firstNonZero(issue.ClosedAt, issue.UpdatedAt)
	}

	return fmt.Sprintf("%s **Issue %s in %s**\n", emoji, action, repoID) +
		fmt.Sprintf("**Title:** %s\n", titleOrFallback(issue.Title)) +
		fmt.Sprintf("**Author:** %s\n", firstNonEmpty(issue.Author, unknownAuthor)) +
		fmt.Sprintf("**Number:** #%d\n", issue.Number) +
		fmt.Sprintf("**Date:** %s\n", formatDate(date)) +
		fmt.Sprintf("**Link:** %s", issue.URL)
}

// ReleaseMessage formats a new release notification.
// An unnamed release shows its tag as the name.
func ReleaseMessage(r github.Release, repoID string) string {
	prerelease := ""
	if r.Prerelease {
		prerelease = " (Pre-release)"
	}

	return fmt.Sprintf("🚀 **New release in %s**%s\n", repoID, prerelease) +
		fmt.Sprintf("**Version:** %s\n", r.TagName) +
		fmt.Sprintf("**Name:** %s\n", firstNonEmpty(r.Name, r.TagName, untitled)) +
		fmt.Sprintf("**Author:** %s\n", firstNonEmpty(r.Author, unknownAuthor)) +
		fmt.Sprintf("**Date:** %s\n", formatDate(r.PublishedAt)) +
		fmt.Sprintf("**Link:** %s", r.URL)
}

// Helper functions

func formatDate(t time.Time) string {
	if t.IsZero() {
		return unknownDate
	}
	return t.Local().Format(dateLayout)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func titleOrFallback(title string) string {
	title = truncateString(strings.TrimSpace(title), maxLineLength)
	if title == "" {
		return untitled
	}
	return title
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// truncateString shortens s to at most maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
