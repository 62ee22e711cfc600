package preview

import (
	"context"
	"sync"
	"time"

	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
)

// fakeClock advances instantly: After moves time forward by d
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type step struct {
	health models.HealthStatus
	sync   models.SyncStatus
	err    error
}

func progressing() step { return step{health: models.HealthProgressing, sync: models.SyncOutOfSync} }
func healthy() step     { return step{health: models.HealthHealthy, sync: models.SyncSynced} }
func degraded() step    { return step{health: models.HealthDegraded, sync: models.SyncSynced} }

// scriptedStatus replays steps; the last step repeats forever
type scriptedStatus struct {
	mu      sync.Mutex
	clock   *fakeClock
	steps   []step
	latency time.Duration
	calls   int
}

func (s *scriptedStatus) GetStatus(ctx context.Context, app string) (models.DeploymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	st := s.steps[min(s.calls, len(s.steps))-1]
	if s.clock != nil && s.latency > 0 {
		s.clock.Advance(s.latency)
	}
	if st.err != nil {
		return models.DeploymentStatus{}, st.err
	}
	now := time.Time{}
	if s.clock != nil {
		now = s.clock.Now()
	}
	return models.DeploymentStatus{App: app, Health: st.health, Sync: st.sync, ObservedAt: now}, nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fixedWaiter returns one final status after advancing the clock by elapsed
type fixedWaiter struct {
	clock   *fakeClock
	elapsed time.Duration
	result  step
	calls   int
	timeout time.Duration
}

func (w *fixedWaiter) WaitForStatus(ctx context.Context, app string, timeout time.Duration) (models.DeploymentStatus, error) {
	w.calls++
	w.timeout = timeout
	if w.clock != nil {
		w.clock.Advance(w.elapsed)
	}
	if w.result.err != nil {
		return models.DeploymentStatus{}, w.result.err
	}
	return models.DeploymentStatus{App: app, Health: w.result.health, Sync: w.result.sync}, nil
}

// fakePRs serves PR lookups from memory or fails every call with err
type fakePRs struct {
	mu    sync.Mutex
	prs   map[string][]models.PullRequestRecord
	err   error
	calls []string
}

func (f *fakePRs) GetPR(ctx context.Context, repo string, number uint64) (*models.PullRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get "+repo)
	if f.err != nil {
		return nil, f.err
	}
	for _, pr := range f.prs[repo] {
		if pr.Number == number {
			return &pr, nil
		}
	}
	return nil, github.ErrPRNotFound
}

func (f *fakePRs) ListPRs(ctx context.Context, repo, head string, state github.StateFilter) ([]models.PullRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list "+repo+" "+string(state))
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PullRequestRecord
	for _, pr := range f.prs[repo] {
		if state == github.StateOpen && pr.State != models.PROpen {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}

func (f *fakePRs) ClosePR(ctx context.Context, repo string, number uint64, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "close "+repo)
	if f.err != nil {
		return f.err
	}
	for i, pr := range f.prs[repo] {
		if pr.Number == number {
			f.prs[repo][i].State = models.PRClosed
		}
	}
	return nil
}

func infraPR(number uint64, id models.PreviewID, state models.PRState) models.PullRequestRecord {
	return models.PullRequestRecord{
		Repo:       "dem2-infra",
		Number:     number,
		Title:      "Preview " + string(id),
		State:      state,
		HeadBranch: id.BranchName(),
		BaseBranch: "main",
		URL:        "https://github.com/NumberOne-AI/dem2-infra/pull/91",
	}
}
