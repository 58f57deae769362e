package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidRepoID  = errors.New("invalid repository format, use owner/repo")
	ErrRepoNotFound   = errors.New("repository not found or is private")
	ErrAlreadyWatched = errors.New("repository is already being watched")
	ErrNotWatched     = errors.New("repository is not in the watch list")
	ErrNoEvents       = errors.New("at least one event must be watched")
	ErrInvalidEvents  = errors.New("invalid events")
	ErrNoChannel      = errors.New("channel is required")
)

var repoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+/[a-zA-Z0-9._-]+$`)

// ValidateRepoID checks the owner/name form of a repository id.
func ValidateRepoID(repoID string) error {
	if !repoIDPattern.MatchString(repoID) {
		return fmt.Errorf("%w: %q", ErrInvalidRepoID, repoID)
	}
	return nil
}

// SplitRepoID splits "owner/name" into its parts.
func SplitRepoID(repoID string) (owner, name string, err error) {
	if err := ValidateRepoID(repoID); err != nil {
		return "", "", err
	}
	owner, name, _ = strings.Cut(repoID, "/")
	return owner, name, nil
}

// ParseEvents parses a comma-separated list of event names.
// Unknown names are reported together in an ErrInvalidEvents error.
func ParseEvents(input string) ([]EventCategory, error) {
	var (
		events  []EventCategory
		invalid []string
		seen    = make(map[EventCategory]bool)
	)

	for _, part := range strings.Split(input, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		ev := EventCategory(name)
		if _, ok := EventDescriptions[ev]; !ok {
			invalid = append(invalid, name)
			continue
		}
		if !seen[ev] {
			seen[ev] = true
			events = append(events, ev)
		}
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvents, strings.Join(invalid, ", "))
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	return events, nil
}

// RepoValidator checks that a repository exists upstream.
type RepoValidator interface {
	ValidateRepository(ctx context.Context, owner, repo string) (bool, error)
}

// Watchlist implements the registry list operations on top of a Registry.
// Every mutation is a full read-modify-write of the list under Registry.Update.
type Watchlist struct {
	registry  Registry
	validator RepoValidator
	now       func() time.Time
}

// NewWatchlist creates a watchlist. validator may be nil to skip the upstream existence check.
func NewWatchlist(registry Registry, validator RepoValidator) *Watchlist {
	return &Watchlist{
		registry:  registry,
		validator: validator,
		now:       time.Now,
	}
}

// List returns all watched repositories.
func (w *Watchlist) List(ctx context.Context) ([]WatchedRepository, error) {
	return w.registry.Get(ctx)
}

// Add registers a repository with nil watermarks.
// A nil or empty events slice subscribes to the default categories.
func (w *Watchlist) Add(ctx context.Context, repoID, channelID, addedBy string, events []EventCategory) (*WatchedRepository, error) {
	owner, name, err := SplitRepoID(repoID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, ErrNoChannel
	}

	if w.validator != nil {
		exists, err := w.validator.ValidateRepository(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("failed to validate repository: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
		}
	}

	if len(events) == 0 {
		events = DefaultEvents()
	}
	repo := WatchedRepository{
		RepoID:        repoID,
		ChannelID:     channelID,
		WatchedEvents: events,
		AddedBy:       addedBy,
		AddedAt:       w.now().UTC(),
	}

	err = w.registry.Update(ctx, func(repos []WatchedRepository) ([]WatchedRepository, error) {
		if indexOf(repos, repoID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyWatched, repoID)
		}
		return append(repos, repo), nil
	})
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// Remove deletes a repository from the watch list.
func (w *Watchlist) Remove(ctx context.Context, repoID string) error {
	return w.registry.Update(ctx, func(repos []WatchedRepository) ([]WatchedRepository, error) {
		i := indexOf(repos, repoID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotWatched, repoID)
		}
		return append(repos[:i:i], repos[i+1:]...), nil
	})
}

// UpdateEvents replaces the watched events of a repository and returns the previous set.
func (w *Watchlist) UpdateEvents(ctx context.Context, repoID string, events []EventCategory) ([]EventCategory, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	var previous []EventCategory
	err := w.registry.Update(ctx, func(repos []WatchedRepository) ([]WatchedRepository, error) {
		i := indexOf(repos, repoID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotWatched, repoID)
		}
		previous = repos[i].WatchedEvents
		repos[i].WatchedEvents = events
		return repos, nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func indexOf(repos []WatchedRepository, repoID string) int {
	for i := range repos {
		if repos[i].RepoID == repoID {
			return i
		}
	}
	return -1
}
