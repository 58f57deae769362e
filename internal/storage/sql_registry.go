package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLRegistry stores the watch list in the watched_repos table.
type SQLRegistry struct {
	db *Database
	mu sync.Mutex // serialises writers within this process
}

// NewSQLRegistry creates a registry backed by db.
func NewSQLRegistry(db *Database) *SQLRegistry {
	return &SQLRegistry{db: db}
}

// repoRow is the table representation of a WatchedRepository.
type repoRow struct {
	RepoID            string         `db:"repo_id"`
	Position          int            `db:"position"`
	ChannelID         string         `db:"channel_id"`
	WatchedEvents     string         `db:"watched_events"` // JSON array of event categories
	LastCommitID      sql.NullString `db:"last_commit_id"`
	LastPullRequestID sql.NullInt64  `db:"last_pull_request_id"`
	LastIssueID       sql.NullInt64  `db:"last_issue_id"`
	LastReleaseID     sql.NullInt64  `db:"last_release_id"`
	AddedBy           string         `db:"added_by"`
	AddedAt           string         `db:"added_at"`
}

const insertRepoQuery = `
	INSERT INTO watched_repos (
		repo_id, position, channel_id, watched_events,
		last_commit_id, last_pull_request_id, last_issue_id, last_release_id,
		added_by, added_at
	) VALUES (
		:repo_id, :position, :channel_id, :watched_events,
		:last_commit_id, :last_pull_request_id, :last_issue_id, :last_release_id,
		:added_by, :added_at
	)
`

// Get returns every watched repository in insertion order.
func (r *SQLRegistry) Get(ctx context.Context) ([]WatchedRepository, error) {
	return r.load(ctx, r.db)
}

// Put replaces the stored list with repos in a single transaction.
func (r *SQLRegistry) Put(ctx context.Context, repos []WatchedRepository) error {
	return r.Update(ctx, func([]WatchedRepository) ([]WatchedRepository, error) {
		return repos, nil
	})
}

// Update reads the list, applies fn and writes the result in one transaction.
func (r *SQLRegistry) Update(ctx context.Context, fn UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.load(ctx, tx)
	if err != nil {
		return err
	}
	repos, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM watched_repos`); err != nil {
		return fmt.Errorf("failed to clear watched repos: %w", err)
	}
	for i, repo := range repos {
		row, err := fromModel(i, repo)
		if err != nil {
			return fmt.Errorf("repo %s: %w", repo.RepoID, err)
		}
		if _, err := tx.NamedExecContext(ctx, insertRepoQuery, row); err != nil {
			return fmt.Errorf("failed to store repo %s: %w", repo.RepoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit watched repos: %w", err)
	}
	return nil
}

func (r *SQLRegistry) load(ctx context.Context, q sqlx.QueryerContext) ([]WatchedRepository, error) {
	var rows []repoRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT * FROM watched_repos ORDER BY position`); err != nil {
		return nil, fmt.Errorf("failed to load watched repos: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	repos := make([]WatchedRepository, 0, len(rows))
	for _, row := range rows {
		repo, err := row.toModel()
		if err != nil {
			return nil, fmt.Errorf("repo %s: %w", row.RepoID, err)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// Close closes the underlying database.
func (r *SQLRegistry) Close() error {
	return r.db.Close()
}

func fromModel(position int, repo WatchedRepository) (repoRow, error) {
	events, err := json.Marshal(repo.WatchedEvents)
	if err != nil {
		return repoRow{}, fmt.Errorf("failed to marshal events: %w", err)
	}

	row := repoRow{
		RepoID:        repo.RepoID,
		Position:      position,
		ChannelID:     repo.ChannelID,
		WatchedEvents: string(events),
		AddedBy:       repo.AddedBy,
	}
	if !repo.AddedAt.IsZero() {
		row.AddedAt = repo.AddedAt.UTC().Format(time.RFC3339)
	}
	if repo.LastCommitID != nil {
		row.LastCommitID = sql.NullString{String: *repo.LastCommitID, Valid: true}
	}
	row.LastPullRequestID = nullInt(repo.LastPullRequestID)
	row.LastIssueID = nullInt(repo.LastIssueID)
	row.LastReleaseID = nullInt(repo.LastReleaseID)
	return row, nil
}

func (row repoRow) toModel() (WatchedRepository, error) {
	repo := WatchedRepository{
		RepoID:    row.RepoID,
		ChannelID: row.ChannelID,
		AddedBy:   row.AddedBy,
	}
	if row.WatchedEvents != "" {
		if err := json.Unmarshal([]byte(row.WatchedEvents), &repo.WatchedEvents); err != nil {
			return WatchedRepository{}, fmt.Errorf("failed to unmarshal events: %w", err)
		}
	}
	if row.AddedAt != "" {
		t, err := time.Parse(time.RFC3339, row.AddedAt)
		if err != nil {
			return WatchedRepository{}, fmt.Errorf("failed to parse added_at: %w", err)
		}
		repo.AddedAt = t
	}
	if row.LastCommitID.Valid {
		sha := row.LastCommitID.String
		repo.LastCommitID = &sha
	}
	repo.LastPullRequestID = intPtr(row.LastPullRequestID)
	repo.LastIssueID = intPtr(row.LastIssueID)
	repo.LastReleaseID = intPtr(row.LastReleaseID)
	repo.normalize()
	return repo, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
