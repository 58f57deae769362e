package watcher

import (
	"sort"

	"github.com/user/repowatch/internal/github"
	"github.com/user/repowatch/internal/notifier"
	"github.com/user/repowatch/internal/storage"
)

// commitsSince returns the commits above sha, newest first. If sha is not on
// the page the whole page is returned.
func commitsSince(commits []github.Commit, sha string) []github.Commit {
	for i, c := range commits {
		if c.SHA == sha {
			return commits[:i]
		}
	}
	return commits
}

// newerThan returns the items whose id is above watermark, ascending by id.
func newerThan[T any](items []T, id func(T) int64, watermark int64) []T {
	var fresh []T
	for _, item := range items {
		if id(item) > watermark {
			fresh = append(fresh, item)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return id(fresh[i]) < id(fresh[j]) })
	return fresh
}

func maxID[T any](items []T, id func(T) int64) int64 {
	var top int64
	for i, item := range items {
		if v := id(item); i == 0 || v > top {
			top = v
		}
	}
	return top
}

// advance moves the watermark forward to top. It never moves backwards.
func advance(watermark **int64, top int64) {
	if *watermark != nil && **watermark >= top {
		return
	}
	*watermark = &top
}

// pullRequestActions lists the subscribed notifications a pull request
// triggers. A merged pull request is never reported as closed.
func pullRequestActions(repo *storage.WatchedRepository, pr github.PullRequest) []notifier.Action {
	var actions []notifier.Action
	if repo.Watches(storage.EventPROpened) && pr.State == github.StateOpen {
		actions = append(actions, notifier.ActionOpened)
	}
	if repo.Watches(storage.EventPRMerged) && pr.Merged {
		actions = append(actions, notifier.ActionMerged)
	}
	if repo.Watches(storage.EventPRClosed) && pr.State == github.StateClosed && !pr.Merged {
		actions = append(actions, notifier.ActionClosed)
	}
	return actions
}

func issueActions(repo *storage.WatchedRepository, issue github.Issue) []notifier.Action {
	var actions []notifier.Action
	if repo.Watches(storage.EventIssuesOpened) && issue.State == github.StateOpen {
		actions = append(actions, notifier.ActionOpened)
	}
	if repo.Watches(storage.EventIssuesClosed) && issue.State == github.StateClosed {
		actions = append(actions, notifier.ActionClosed)
	}
	return actions
}

// mergeWatermarks copies the watermarks of checked onto latest. Entries that
// were removed, or removed and re-added, since the cycle started are not
// touched.
func mergeWatermarks(latest, checked []storage.WatchedRepository) []storage.WatchedRepository {
	byID := make(map[string]storage.WatchedRepository, len(checked))
	for _, repo := range checked {
		byID[repo.RepoID] = repo
	}

	merged := make([]storage.WatchedRepository, len(latest))
	for i, repo := range latest {
		if c, ok := byID[repo.RepoID]; ok && c.AddedAt.Equal(repo.AddedAt) {
			repo.LastCommitID = c.LastCommitID
			repo.LastPullRequestID = c.LastPullRequestID
			repo.LastIssueID = c.LastIssueID
			repo.LastReleaseID = c.LastReleaseID
		}
		merged[i] = repo
	}
	return merged
}
