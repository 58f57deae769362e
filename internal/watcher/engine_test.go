package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/repowatch/internal/github"
	"github.com/user/repowatch/internal/storage"
)

type fakeUpstream struct {
	mu       sync.Mutex
	commits  map[string]github.Result[github.Commit]
	pulls    map[string]github.Result[github.PullRequest]
	issues   map[string]github.Result[github.Issue]
	releases map[string]github.Result[github.Release]
	calls    []string

	panicOnPulls string
	entered      chan struct{}
	release      chan struct{}
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		commits:  map[string]github.Result[github.Commit]{},
		pulls:    map[string]github.Result[github.PullRequest]{},
		issues:   map[string]github.Result[github.Issue]{},
		releases: map[string]github.Result[github.Release]{},
	}
}

func (f *fakeUpstream) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeUpstream) ListCommits(_ context.Context, repoID string) github.Result[github.Commit] {
	f.record("commits " + repoID)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.commits[repoID]
}

func (f *fakeUpstream) ListPullRequests(_ context.Context, repoID string) github.Result[github.PullRequest] {
	f.record("pulls " + repoID)
	if repoID == f.panicOnPulls {
		panic("unexpected payload")
	}
	return f.pulls[repoID]
}

func (f *fakeUpstream) ListIssues(_ context.Context, repoID string) github.Result[github.Issue] {
	f.record("issues " + repoID)
	return f.issues[repoID]
}

func (f *fakeUpstream) ListReleases(_ context.Context, repoID string) github.Result[github.Release] {
	f.record("releases " + repoID)
	return f.releases[repoID]
}

type sentMessage struct {
	channelID string
	message   string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, channelID, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{channelID: channelID, message: message})
	return d.err
}

func (d *recordingDispatcher) messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.sent))
	for _, s := range d.sent {
		out = append(out, s.message)
	}
	return out
}

type memRegistry struct {
	mu     sync.Mutex
	repos  []storage.WatchedRepository
	getErr error
	putErr error
	puts   int

	// beforeUpdate simulates list edits landing while a cycle runs.
	beforeUpdate func(repos []storage.WatchedRepository) []storage.WatchedRepository
}

func (m *memRegistry) Get(context.Context) ([]storage.WatchedRepository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return append([]storage.WatchedRepository(nil), m.repos...), nil
}

func (m *memRegistry) Put(_ context.Context, repos []storage.WatchedRepository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.repos = append([]storage.WatchedRepository(nil), repos...)
	return nil
}

func (m *memRegistry) Update(_ context.Context, fn storage.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	current := append([]storage.WatchedRepository(nil), m.repos...)
	if m.beforeUpdate != nil {
		current = m.beforeUpdate(current)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	m.repos = next
	return nil
}

func (m *memRegistry) Close() error { return nil }

func (m *memRegistry) repo(t *testing.T, repoID string) storage.WatchedRepository {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.RepoID == repoID {
			return r
		}
	}
	t.Fatalf("repo %s not in registry", repoID)
	return storage.WatchedRepository{}
}

func strPtr(s string) *string { return &s }
func idPtr(v int64) *int64    { return &v }

func watched(repoID string, events ...storage.EventCategory) storage.WatchedRepository {
	return storage.WatchedRepository{
		RepoID:        repoID,
		ChannelID:     "chan-" + repoID,
		WatchedEvents: events,
	}
}

func commits(shas ...string) github.Result[github.Commit] {
	items := make([]github.Commit, 0, len(shas))
	for _, sha := range shas {
		items = append(items, github.Commit{SHA: sha, Message: "msg " + sha, Login: "octocat"})
	}
	return github.Result[github.Commit]{Items: items}
}

func openPR(id int64) github.PullRequest {
	return github.PullRequest{ID: id, Number: int(id), Title: fmt.Sprintf("PR %d", id), State: github.StateOpen}
}

func newTestEngine(reg *memRegistry, up *fakeUpstream, disp *recordingDispatcher) *Engine {
	return NewEngine(reg, up, disp)
}

func TestPullRequestsEmittedOldestFirst(t *testing.T) {
	repo := watched("octo/demo", storage.EventPROpened)
	repo.LastPullRequestID = idPtr(10)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}

	up := newFakeUpstream()
	up.pulls["octo/demo"] = github.Result[github.PullRequest]{
		Items: []github.PullRequest{openPR(13), openPR(12), openPR(11)},
	}
	disp := &recordingDispatcher{}

	report, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "#11")
	assert.Contains(t, msgs[1], "#12")
	assert.Contains(t, msgs[2], "#13")
	for _, m := range msgs {
		assert.Contains(t, m, "Pull request opened in octo/demo")
	}

	assert.Equal(t, int64(13), *reg.repo(t, "octo/demo").LastPullRequestID)
	assert.Equal(t, 3, report.Notifications)
	assert.Equal(t, 1, report.Repositories)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "chan-octo/demo", disp.sent[0].channelID)
}

func TestPullRequestLifecycleScenario(t *testing.T) {
	repo := watched("octocat/demo", storage.EventPROpened, storage.EventPRClosed, storage.EventPRMerged)
	repo.LastPullRequestID = idPtr(10)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.pulls["octocat/demo"] = github.Result[github.PullRequest]{Items: []github.PullRequest{
		{ID: 13, Number: 13, State: github.StateOpen},
		{ID: 12, Number: 12, State: github.StateClosed, Merged: true},
		{ID: 11, Number: 11, State: github.StateClosed},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "Pull request closed")
	assert.Contains(t, msgs[0], "#11")
	assert.Contains(t, msgs[1], "Pull request merged")
	assert.Contains(t, msgs[1], "#12")
	assert.Contains(t, msgs[2], "Pull request opened")
	assert.Contains(t, msgs[2], "#13")
	assert.Equal(t, int64(13), *reg.repo(t, "octocat/demo").LastPullRequestID)
}

func TestCommits(t *testing.T) {
	tests := []struct {
		name      string
		watermark *string
		page      []string
		wantSHAs  []string
		wantMark  string
	}{
		{
			name:     "null watermark records baseline",
			page:     []string{"c5", "c4", "c3", "c2", "c1"},
			wantMark: "c5",
		},
		{
			name:      "emits commits above watermark oldest first",
			watermark: strPtr("c2"),
			page:      []string{"c5", "c4", "c3", "c2", "c1"},
			wantSHAs:  []string{"c3", "c4", "c5"},
			wantMark:  "c5",
		},
		{
			name:      "watermark off the page emits whole page",
			watermark: strPtr("c_old"),
			page:      []string{"c5", "c4", "c3", "c2", "c1"},
			wantSHAs:  []string{"c1", "c2", "c3", "c4", "c5"},
			wantMark:  "c5",
		},
		{
			name:      "unchanged head emits nothing",
			watermark: strPtr("c3"),
			page:      []string{"c3", "c2"},
			wantMark:  "c3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := watched("octo/demo", storage.EventCommits)
			repo.LastCommitID = tt.watermark
			reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
			up := newFakeUpstream()
			up.commits["octo/demo"] = commits(tt.page...)
			disp := &recordingDispatcher{}

			_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
			require.NoError(t, err)

			msgs := disp.messages()
			require.Len(t, msgs, len(tt.wantSHAs))
			for i, sha := range tt.wantSHAs {
				assert.Contains(t, msgs[i], "`"+sha+"`")
			}
			assert.Equal(t, tt.wantMark, *reg.repo(t, "octo/demo").LastCommitID)
		})
	}
}

func TestPushEventWatchesCommits(t *testing.T) {
	repo := watched("octo/demo", storage.EventPush)
	repo.LastCommitID = strPtr("c1")
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.commits["octo/demo"] = commits("c2", "c1")
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, disp.messages(), 1)
}

func TestDraftReleasesSkippedButWatermarkAdvances(t *testing.T) {
	repo := watched("octo/demo", storage.EventReleases)
	repo.LastReleaseID = idPtr(100)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.releases["octo/demo"] = github.Result[github.Release]{Items: []github.Release{
		{ID: 102, TagName: "v2.0.0-draft", Draft: true},
		{ID: 101, TagName: "v1.1.0"},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "v1.1.0")
	assert.Equal(t, int64(102), *reg.repo(t, "octo/demo").LastReleaseID)
}

func TestIssuesIgnorePullRequests(t *testing.T) {
	repo := watched("octo/demo", storage.EventIssuesOpened)
	repo.LastIssueID = idPtr(5)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.issues["octo/demo"] = github.Result[github.Issue]{Items: []github.Issue{
		{ID: 7, Number: 7, State: github.StateOpen, IsPullRequest: true, URL: "https://github.com/octo/demo/pull/7"},
		{ID: 6, Number: 6, State: github.StateOpen, URL: "https://github.com/octo/demo/issues/6"},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Issue opened in octo/demo")
	assert.Contains(t, msgs[0], "#6")
	assert.Equal(t, int64(6), *reg.repo(t, "octo/demo").LastIssueID)
}

func TestIssuesOnlyPullRequestsLeavesWatermark(t *testing.T) {
	repo := watched("octo/demo", storage.EventIssuesOpened, storage.EventIssuesClosed)
	repo.LastIssueID = idPtr(5)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.issues["octo/demo"] = github.Result[github.Issue]{Items: []github.Issue{
		{ID: 9, State: github.StateOpen, IsPullRequest: true},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, disp.messages())
	assert.Equal(t, int64(5), *reg.repo(t, "octo/demo").LastIssueID)
}

func TestClosedIssue(t *testing.T) {
	repo := watched("octo/demo", storage.EventIssuesOpened, storage.EventIssuesClosed)
	repo.LastIssueID = idPtr(1)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.issues["octo/demo"] = github.Result[github.Issue]{Items: []github.Issue{
		{ID: 2, Number: 2, State: github.StateClosed},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Issue closed in octo/demo")
}

func TestMergedPullRequestNeverReportedClosed(t *testing.T) {
	repo := watched("octo/demo", storage.EventPRClosed, storage.EventPRMerged)
	repo.LastPullRequestID = idPtr(10)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.pulls["octo/demo"] = github.Result[github.PullRequest]{Items: []github.PullRequest{
		{ID: 12, Number: 12, State: github.StateClosed},
		{ID: 11, Number: 11, State: github.StateClosed, Merged: true},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "Pull request merged")
	assert.Contains(t, msgs[0], "#11")
	assert.Contains(t, msgs[1], "Pull request closed")
	assert.Contains(t, msgs[1], "#12")
}

func TestUnsubscribedActionsAdvanceWatermark(t *testing.T) {
	repo := watched("octo/demo", storage.EventPRMerged)
	repo.LastPullRequestID = idPtr(1)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.pulls["octo/demo"] = github.Result[github.PullRequest]{Items: []github.PullRequest{openPR(4)}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, disp.messages())
	assert.Equal(t, int64(4), *reg.repo(t, "octo/demo").LastPullRequestID)
}

func TestNullWatermarkBaselines(t *testing.T) {
	repo := watched("octo/demo", storage.EventPROpened, storage.EventReleases, storage.EventIssuesOpened)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.pulls["octo/demo"] = github.Result[github.PullRequest]{Items: []github.PullRequest{openPR(8), openPR(9)}}
	up.issues["octo/demo"] = github.Result[github.Issue]{Items: []github.Issue{{ID: 3, State: github.StateOpen}}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Empty(t, disp.messages())
	got := reg.repo(t, "octo/demo")
	assert.Equal(t, int64(9), *got.LastPullRequestID)
	assert.Equal(t, int64(3), *got.LastIssueID)
	assert.Nil(t, got.LastReleaseID, "empty page keeps a null watermark")
}

func TestSecondCycleIsIdempotent(t *testing.T) {
	repo := watched("octo/demo", storage.EventCommits, storage.EventPROpened)
	repo.LastCommitID = strPtr("c1")
	repo.LastPullRequestID = idPtr(1)
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.commits["octo/demo"] = commits("c3", "c2", "c1")
	up.pulls["octo/demo"] = github.Result[github.PullRequest]{Items: []github.PullRequest{openPR(2)}}
	disp := &recordingDispatcher{}
	engine := newTestEngine(reg, up, disp)

	_, err := engine.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, disp.messages(), 3)

	second, err := engine.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, disp.messages(), 3)
	assert.Zero(t, second.Notifications)
}

func TestFetchFailureIsolated(t *testing.T) {
	a := watched("octo/a", storage.EventCommits, storage.EventReleases)
	a.LastCommitID = strPtr("a1")
	a.LastReleaseID = idPtr(1)
	b := watched("octo/b", storage.EventCommits)
	b.LastCommitID = strPtr("b1")
	reg := &memRegistry{repos: []storage.WatchedRepository{a, b}}

	up := newFakeUpstream()
	up.commits["octo/a"] = github.Result[github.Commit]{Err: errors.New("503")}
	up.releases["octo/a"] = github.Result[github.Release]{Items: []github.Release{{ID: 2, TagName: "v2"}}}
	up.commits["octo/b"] = commits("b2", "b1")
	disp := &recordingDispatcher{}

	report, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FetchFailures)
	assert.Len(t, disp.messages(), 2)
	assert.Equal(t, "a1", *reg.repo(t, "octo/a").LastCommitID)
	assert.Equal(t, int64(2), *reg.repo(t, "octo/a").LastReleaseID)
	assert.Equal(t, "b2", *reg.repo(t, "octo/b").LastCommitID)
}

func TestPanicInRepositoryKeepsEarlierProgress(t *testing.T) {
	a := watched("octo/a", storage.EventCommits, storage.EventPROpened)
	a.LastCommitID = strPtr("a1")
	a.LastPullRequestID = idPtr(1)
	b := watched("octo/b", storage.EventCommits)
	b.LastCommitID = strPtr("b1")
	reg := &memRegistry{repos: []storage.WatchedRepository{a, b}}

	up := newFakeUpstream()
	up.commits["octo/a"] = commits("a2", "a1")
	up.commits["octo/b"] = commits("b2", "b1")
	up.panicOnPulls = "octo/a"
	disp := &recordingDispatcher{}

	report, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RepoFailures)
	assert.Equal(t, "a2", *reg.repo(t, "octo/a").LastCommitID)
	assert.Equal(t, int64(1), *reg.repo(t, "octo/a").LastPullRequestID)
	assert.Equal(t, "b2", *reg.repo(t, "octo/b").LastCommitID)
}

func TestDeliveryFailureStillAdvances(t *testing.T) {
	repo := watched("octo/demo", storage.EventCommits)
	repo.LastCommitID = strPtr("c1")
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.commits["octo/demo"] = commits("c2", "c1")
	disp := &recordingDispatcher{err: errors.New("missing access")}

	report, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DeliveryFailures)
	assert.Equal(t, "c2", *reg.repo(t, "octo/demo").LastCommitID)
}

func TestRegistryErrors(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		reg := &memRegistry{getErr: errors.New("disk gone")}
		_, err := newTestEngine(reg, newFakeUpstream(), &recordingDispatcher{}).RunCycle(context.Background(), time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading watched repos")
		assert.Zero(t, reg.puts)
	})

	t.Run("save failure", func(t *testing.T) {
		repo := watched("octo/demo", storage.EventCommits)
		reg := &memRegistry{repos: []storage.WatchedRepository{repo}, putErr: errors.New("read-only")}
		up := newFakeUpstream()
		up.commits["octo/demo"] = commits("c1")

		_, err := newTestEngine(reg, up, &recordingDispatcher{}).RunCycle(context.Background(), time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "saving watched repos")
		assert.Nil(t, reg.repo(t, "octo/demo").LastCommitID)
	})
}

func TestEmptyRegistry(t *testing.T) {
	reg := &memRegistry{}
	up := newFakeUpstream()
	report, err := newTestEngine(reg, up, &recordingDispatcher{}).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, report.Repositories)
	assert.Empty(t, up.calls)
}

func TestOnlySubscribedCategoriesFetched(t *testing.T) {
	reg := &memRegistry{repos: []storage.WatchedRepository{watched("octo/demo", storage.EventReleases)}}
	up := newFakeUpstream()

	_, err := newTestEngine(reg, up, &recordingDispatcher{}).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"releases octo/demo"}, up.calls)
}

func TestCancelledCycleCarriesRegistryOver(t *testing.T) {
	repo := watched("octo/demo", storage.EventCommits)
	repo.LastCommitID = strPtr("c1")
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(reg, up, &recordingDispatcher{}).RunCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, report.Repositories)
	assert.Empty(t, up.calls)
	assert.Equal(t, 1, reg.puts)
	assert.Equal(t, "c1", *reg.repo(t, "octo/demo").LastCommitID)
}

func TestOverlappingCycleRejected(t *testing.T) {
	reg := &memRegistry{repos: []storage.WatchedRepository{watched("octo/demo", storage.EventCommits)}}
	up := newFakeUpstream()
	up.commits["octo/demo"] = commits("c1")
	up.entered = make(chan struct{})
	up.release = make(chan struct{})
	engine := newTestEngine(reg, up, &recordingDispatcher{})

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunCycle(context.Background(), time.Now())
		done <- err
	}()

	<-up.entered
	report, err := engine.RunCycle(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Nil(t, report)

	close(up.release)
	require.NoError(t, <-done)
}

func TestCommitMessageUsesFirstLine(t *testing.T) {
	repo := watched("octo/demo", storage.EventCommits)
	repo.LastCommitID = strPtr("c1")
	reg := &memRegistry{repos: []storage.WatchedRepository{repo}}
	up := newFakeUpstream()
	up.commits["octo/demo"] = github.Result[github.Commit]{Items: []github.Commit{
		{SHA: "c2", Message: "Fix parser\n\nLong body", AuthorName: "Mona"},
		{SHA: "c1"},
	}}
	disp := &recordingDispatcher{}

	_, err := newTestEngine(reg, up, disp).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	msgs := disp.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Fix parser")
	assert.False(t, strings.Contains(msgs[0], "Long body"))
	assert.Contains(t, msgs[0], "Mona")
}

func TestListEditsDuringCycleSurvive(t *testing.T) {
	a := watched("octo/a", storage.EventCommits)
	a.LastCommitID = strPtr("a1")
	b := watched("octo/b", storage.EventCommits)
	b.LastCommitID = strPtr("b1")
	reg := &memRegistry{repos: []storage.WatchedRepository{a, b}}
	reg.beforeUpdate = func(repos []storage.WatchedRepository) []storage.WatchedRepository {
		// octo/b removed and octo/c added while the cycle ran.
		return []storage.WatchedRepository{repos[0], watched("octo/c", storage.EventReleases)}
	}

	up := newFakeUpstream()
	up.commits["octo/a"] = commits("a2", "a1")
	up.commits["octo/b"] = commits("b2", "b1")

	_, err := newTestEngine(reg, up, &recordingDispatcher{}).RunCycle(context.Background(), time.Now())
	require.NoError(t, err)

	require.Len(t, reg.repos, 2)
	assert.Equal(t, "a2", *reg.repo(t, "octo/a").LastCommitID)
	assert.Nil(t, reg.repo(t, "octo/c").LastReleaseID)
}
