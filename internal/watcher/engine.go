// Package watcher runs the scheduled diff-and-notify cycle over the watch registry.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/user/repowatch/internal/github"
	"github.com/user/repowatch/internal/notifier"
	"github.com/user/repowatch/internal/storage"
	"github.com/user/repowatch/pkg/logger"
)

// ErrCycleInProgress is returned when a cycle is requested while another one runs.
var ErrCycleInProgress = errors.New("a poll cycle is already running")

// Upstream lists the most recent activity of a repository, newest first.
type Upstream interface {
	ListCommits(ctx context.Context, repoID string) github.Result[github.Commit]
	ListPullRequests(ctx context.Context, repoID string) github.Result[github.PullRequest]
	ListIssues(ctx context.Context, repoID string) github.Result[github.Issue]
	ListReleases(ctx context.Context, repoID string) github.Result[github.Release]
}

// Dispatcher delivers a formatted notification. Errors are informational.
type Dispatcher interface {
	Send(ctx context.Context, channelID, message string) error
}

// CycleReport summarises one pass over the registry.
type CycleReport struct {
	ID               string        `json:"id"`
	TriggeredAt      time.Time     `json:"triggered_at"`
	Repositories     int           `json:"repositories"`
	Notifications    int           `json:"notifications"`
	DeliveryFailures int           `json:"delivery_failures"`
	FetchFailures    int           `json:"fetch_failures"`
	RepoFailures     int           `json:"repo_failures"`
	Duration         time.Duration `json:"duration"`
}

// Engine polls every watched repository, notifies about items newer than
// the stored watermarks and advances them.
type Engine struct {
	registry   storage.Registry
	upstream   Upstream
	dispatcher Dispatcher

	// running guards against overlapping cycles; a busy engine skips the trigger.
	running sync.Mutex
	now     func() time.Time
}

// NewEngine creates a new engine.
func NewEngine(registry storage.Registry, upstream Upstream, dispatcher Dispatcher) *Engine {
	return &Engine{
		registry:   registry,
		upstream:   upstream,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// RunCycle loads the registry once, checks each repository in order and
// writes the advanced watermarks back in one batch. triggeredAt is only logged.
//
// Failures inside a repository never abort the cycle. A failure to load or
// store the registry is returned and loses the cycle's watermark progress.
func (e *Engine) RunCycle(ctx context.Context, triggeredAt time.Time) (*CycleReport, error) {
	if !e.running.TryLock() {
		logger.Warn().Time("triggered_at", triggeredAt).Msg("Previous cycle still running, skipping")
		return nil, ErrCycleInProgress
	}
	defer e.running.Unlock()

	started := e.now()
	report := &CycleReport{ID: uuid.NewString(), TriggeredAt: triggeredAt}
	c := &cycle{
		engine: e,
		report: report,
		log:    logger.WithField("cycle_id", report.ID),
	}

	c.log.Info().Time("triggered_at", triggeredAt).Msg("GitHub watcher triggered")

	repos, err := e.registry.Get(ctx)
	if err != nil {
		return report, fmt.Errorf("loading watched repos: %w", err)
	}
	if len(repos) == 0 {
		c.log.Info().Msg("No repositories to watch")
		return report, nil
	}

	c.log.Info().Int("count", len(repos)).Msg("Checking repositories for updates")

	updated := make([]storage.WatchedRepository, 0, len(repos))
	for _, repo := range repos {
		if ctx.Err() != nil {
			// Shutting down: carry the rest over untouched.
			updated = append(updated, repo)
			continue
		}
		updated = append(updated, c.checkRepo(ctx, repo))
		report.Repositories++
	}

	// The registry is written even when ctx was cancelled mid-cycle so that
	// the notifications already attempted are not repeated. Only watermarks
	// are taken from this cycle; list edits made meanwhile are kept.
	err = e.registry.Update(context.WithoutCancel(ctx), func(latest []storage.WatchedRepository) ([]storage.WatchedRepository, error) {
		return mergeWatermarks(latest, updated), nil
	})
	if err != nil {
		return report, fmt.Errorf("saving watched repos: %w", err)
	}

	report.Duration = e.now().Sub(started)
	c.log.Info().
		Int("repositories", report.Repositories).
		Int("notifications", report.Notifications).
		Int("delivery_failures", report.DeliveryFailures).
		Int("fetch_failures", report.FetchFailures).
		Dur("duration", report.Duration).
		Msg("GitHub watcher completed")

	return report, nil
}

// cycle carries the per-run logger and counters.
type cycle struct {
	engine *Engine
	report *CycleReport
	log    zerolog.Logger
}

// checkRepo runs every subscribed category for one repository and returns
// the repository with its advanced watermarks. A panic is contained here;
// progress made by earlier categories is kept.
func (c *cycle) checkRepo(ctx context.Context, repo storage.WatchedRepository) (out storage.WatchedRepository) {
	out = repo
	defer func() {
		if r := recover(); r != nil {
			c.report.RepoFailures++
			c.log.Error().
				Str("repo", repo.RepoID).
				Interface("panic", r).
				Msg("Error checking repository")
		}
	}()

	c.log.Debug().Str("repo", repo.RepoID).Msg("Checking repository")

	if out.Watches(storage.EventCommits, storage.EventPush) {
		c.checkCommits(ctx, &out)
	}
	if out.Watches(storage.EventPROpened, storage.EventPRClosed, storage.EventPRMerged) {
		c.checkPullRequests(ctx, &out)
	}
	if out.Watches(storage.EventIssuesOpened, storage.EventIssuesClosed) {
		c.checkIssues(ctx, &out)
	}
	if out.Watches(storage.EventReleases) {
		c.checkReleases(ctx, &out)
	}
	return out
}

// usable reports whether a fetch produced items worth diffing.
func (c *cycle) usable(repo *storage.WatchedRepository, resource string, status github.Status) bool {
	switch status {
	case github.StatusOK:
		return true
	case github.StatusFailed:
		c.report.FetchFailures++
		c.log.Debug().Str("repo", repo.RepoID).Str("resource", resource).Msg("No data this cycle, fetch failed")
	}
	return false
}

// notify hands message to the dispatcher and reports whether the caller may
// go on. Only cancellation stops the caller; a failed delivery still lets
// the watermark advance.
func (c *cycle) notify(ctx context.Context, repo *storage.WatchedRepository, message string) bool {
	if ctx.Err() != nil {
		return false
	}

	err := c.engine.dispatcher.Send(ctx, repo.ChannelID, message)
	if err != nil && ctx.Err() != nil {
		return false
	}

	c.report.Notifications++
	if err != nil {
		c.report.DeliveryFailures++
	}
	return true
}

// checkCommits walks the newest-first page down to the stored sha.
// Commits carry no ordered id, so a sha missing from the page means every
// commit on it is new.
func (c *cycle) checkCommits(ctx context.Context, repo *storage.WatchedRepository) {
	res := c.engine.upstream.ListCommits(ctx, repo.RepoID)
	if !c.usable(repo, "commits", res.Status()) {
		return
	}

	newest := res.Items[0].SHA
	if repo.LastCommitID == nil {
		repo.LastCommitID = &newest
		c.log.Debug().Str("repo", repo.RepoID).Str("sha", newest).Msg("Commit baseline recorded")
		return
	}
	if *repo.LastCommitID == newest {
		return
	}

	fresh := commitsSince(res.Items, *repo.LastCommitID)
	for i := len(fresh) - 1; i >= 0; i-- {
		if !c.notify(ctx, repo, notifier.CommitMessage(fresh[i], repo.RepoID)) {
			return
		}
	}

	repo.LastCommitID = &newest
	c.log.Info().Str("repo", repo.RepoID).Int("count", len(fresh)).Msg("Sent commit notifications")
}

func (c *cycle) checkPullRequests(ctx context.Context, repo *storage.WatchedRepository) {
	res := c.engine.upstream.ListPullRequests(ctx, repo.RepoID)
	if !c.usable(repo, "pull requests", res.Status()) {
		return
	}

	prID := func(pr github.PullRequest) int64 { return pr.ID }
	if repo.LastPullRequestID == nil {
		top := maxID(res.Items, prID)
		repo.LastPullRequestID = &top
		c.baseline(repo, "pull requests", top)
		return
	}
	fresh := newerThan(res.Items, prID, *repo.LastPullRequestID)

	for _, pr := range fresh {
		for _, action := range pullRequestActions(repo, pr) {
			if !c.notify(ctx, repo, notifier.PullRequestMessage(pr, repo.RepoID, action)) {
				return
			}
		}
	}

	advance(&repo.LastPullRequestID, maxID(res.Items, prID))
	c.log.Info().Str("repo", repo.RepoID).Int("count", len(fresh)).Msg("Checked pull request updates")
}

func (c *cycle) checkIssues(ctx context.Context, repo *storage.WatchedRepository) {
	res := c.engine.upstream.ListIssues(ctx, repo.RepoID)
	if !c.usable(repo, "issues", res.Status()) {
		return
	}

	issues := make([]github.Issue, 0, len(res.Items))
	for _, issue := range res.Items {
		if !issue.IsPullRequest {
			issues = append(issues, issue)
		}
	}
	if len(issues) == 0 {
		return
	}

	issueID := func(issue github.Issue) int64 { return issue.ID }
	if repo.LastIssueID == nil {
		top := maxID(issues, issueID)
		repo.LastIssueID = &top
		c.baseline(repo, "issues", top)
		return
	}
	fresh := newerThan(issues, issueID, *repo.LastIssueID)

	for _, issue := range fresh {
		for _, action := range issueActions(repo, issue) {
			if !c.notify(ctx, repo, notifier.IssueMessage(issue, repo.RepoID, action)) {
				return
			}
		}
	}

	advance(&repo.LastIssueID, maxID(issues, issueID))
	c.log.Info().Str("repo", repo.RepoID).Int("count", len(fresh)).Msg("Checked issue updates")
}

func (c *cycle) checkReleases(ctx context.Context, repo *storage.WatchedRepository) {
	res := c.engine.upstream.ListReleases(ctx, repo.RepoID)
	if !c.usable(repo, "releases", res.Status()) {
		return
	}

	releaseID := func(r github.Release) int64 { return r.ID }
	if repo.LastReleaseID == nil {
		top := maxID(res.Items, releaseID)
		repo.LastReleaseID = &top
		c.baseline(repo, "releases", top)
		return
	}
	fresh := newerThan(res.Items, releaseID, *repo.LastReleaseID)

	for _, release := range fresh {
		if release.Draft {
			continue
		}
		if !c.notify(ctx, repo, notifier.ReleaseMessage(release, repo.RepoID)) {
			return
		}
	}

	advance(&repo.LastReleaseID, maxID(res.Items, releaseID))
	c.log.Info().Str("repo", repo.RepoID).Int("count", len(fresh)).Msg("Checked release updates")
}

func (c *cycle) baseline(repo *storage.WatchedRepository, resource string, id int64) {
	c.log.Debug().Str("repo", repo.RepoID).Str("resource", resource).Int64("id", id).Msg("Baseline recorded")
}
