// Package storage provides the watch registry: data models, persistence
// backends and the list operations used to manage subscriptions.
package storage

import (
	"context"
	"time"
)

// EventCategory represents a subscribable kind of repository activity.
type EventCategory string

const (
	EventCommits      EventCategory = "commits"
	EventPush         EventCategory = "push"
	EventPROpened     EventCategory = "pr_opened"
	EventPRClosed     EventCategory = "pr_closed"
	EventPRMerged     EventCategory = "pr_merged"
	EventIssuesOpened EventCategory = "issues_opened"
	EventIssuesClosed EventCategory = "issues_closed"
	EventReleases     EventCategory = "releases"
)

// AllEvents returns all supported event categories.
func AllEvents() []EventCategory {
	return []EventCategory{
		EventCommits,
		EventPROpened,
		EventPRClosed,
		EventPRMerged,
		EventIssuesOpened,
		EventIssuesClosed,
		EventReleases,
		EventPush,
	}
}

// DefaultEvents returns the event categories for new subscriptions.
func DefaultEvents() []EventCategory {
	return []EventCategory{EventCommits}
}

// EventDescriptions holds the human readable name of each category.
var EventDescriptions = map[EventCategory]string{
	EventCommits:      "📝 New commits",
	EventPROpened:     "🔀 Pull requests opened",
	EventPRClosed:     "❌ Pull requests closed",
	EventPRMerged:     "✅ Pull requests merged",
	EventIssuesOpened: "🐛 Issues opened",
	EventIssuesClosed: "✔️ Issues closed",
	EventReleases:     "🚀 New releases",
	EventPush:         "📤 Push events",
}

// WatchedRepository is one subscription together with its per-category watermarks.
// A nil watermark means the category has never been polled.
type WatchedRepository struct {
	RepoID            string          `json:"repo"`
	ChannelID         string          `json:"channelId"`
	WatchedEvents     []EventCategory `json:"watchedEvents"`
	LastCommitID      *string         `json:"lastCommitId"`
	LastPullRequestID *int64          `json:"lastPullRequestId"`
	LastIssueID       *int64          `json:"lastIssueId"`
	LastReleaseID     *int64          `json:"lastReleaseId"`
	AddedBy           string          `json:"addedBy"`
	AddedAt           time.Time       `json:"addedAt"`
}

// Watches reports whether any of the given categories is subscribed.
func (w *WatchedRepository) Watches(events ...EventCategory) bool {
	for _, have := range w.WatchedEvents {
		for _, want := range events {
			if have == want {
				return true
			}
		}
	}
	return false
}

// normalize fills in defaults for records written by older versions.
func (w *WatchedRepository) normalize() {
	if len(w.WatchedEvents) == 0 {
		w.WatchedEvents = DefaultEvents()
	}
}

// UpdateFunc computes the new list from the stored one.
type UpdateFunc func(current []WatchedRepository) ([]WatchedRepository, error)

// Registry is the durable list of watched repositories.
// Get returns a nil slice when nothing has been stored yet.
// Update applies a read-modify-write atomically with respect to other
// Update and Put calls on the same registry.
type Registry interface {
	Get(ctx context.Context) ([]WatchedRepository, error)
	Put(ctx context.Context, repos []WatchedRepository) error
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}
