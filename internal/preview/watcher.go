package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/models"
)

// State is a deployment watcher state
type State string

const (
	StateCreationPending State = "CreationPending"
	StateProgressing     State = "Progressing"
	StateUnknown         State = "Unknown"
	StateSuspended       State = "Suspended"
	StateHealthySynced   State = "HealthySynced"
	StateDegraded        State = "Degraded"
	StateMissing         State = "Missing"
	StateTimeout         State = "Timeout"
	StateAborted         State = "Aborted"
)

// Terminal reports whether no further polling happens from this state
func (s State) Terminal() bool {
	switch s {
	case StateHealthySynced, StateDegraded, StateMissing, StateTimeout, StateAborted:
		return true
	}
	return false
}

// Classify maps one observation onto a watcher state
func Classify(s models.DeploymentStatus) State {
	switch {
	case s.Health == models.HealthDegraded:
		return StateDegraded
	case s.Health == models.HealthMissing:
		return StateMissing
	case s.Ready():
		return StateHealthySynced
	case s.Health == models.HealthSuspended:
		return StateSuspended
	case s.Health == models.HealthProgressing, s.Health == models.HealthHealthy:
		return StateProgressing
	default:
		return StateUnknown
	}
}

// Mode selects how the watcher reaches a terminal state
type Mode int

const (
	// ModePoll polls GetStatus locally
	ModePoll Mode = iota
	// ModeDelegated blocks in the controller's own wait primitive
	ModeDelegated
)

func (m Mode) String() string {
	if m == ModeDelegated {
		return "delegated"
	}
	return "poll"
}

// Observation is one status fetch as seen by the watcher
type Observation struct {
	Poll    int
	State   State
	Status  models.DeploymentStatus
	Elapsed time.Duration
	// Err is the fetch error when the observation is Unknown or Missing
	Err error
}

// Result is the outcome of a watch, including the observations leading to it
type Result struct {
	App          string
	Mode         Mode
	State        State
	Final        models.DeploymentStatus
	Polls        int
	Elapsed      time.Duration
	Observations []Observation
}

// Succeeded is true for HealthySynced
func (r Result) Succeeded() bool {
	return r.State == StateHealthySynced
}

// WatchConfig bounds the watcher's loops
type WatchConfig struct {
	CreationTimeout   time.Duration
	DeploymentTimeout time.Duration
	PollInterval      time.Duration
}

// DefaultWatchConfig returns 60s creation, 600s deployment and 5s poll interval
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		CreationTimeout:   60 * time.Second,
		DeploymentTimeout: 600 * time.Second,
		PollInterval:      5 * time.Second,
	}
}

// Watcher drives an application to a terminal state
type Watcher struct {
	client argocd.StatusClient
	waiter argocd.Waiter
	cfg    WatchConfig
	clock  Clock
	logger *slog.Logger

	// OnObserve is called synchronously for every observation
	OnObserve func(Observation)
}

// NewWatcher returns a watcher; waiter may be nil when only ModePoll is used
func NewWatcher(client argocd.StatusClient, waiter argocd.Waiter, cfg WatchConfig, clock Clock, logger *slog.Logger) *Watcher {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{client: client, waiter: waiter, cfg: cfg, clock: clock, logger: logger}
}

// Config returns the watcher bounds
func (w *Watcher) Config() WatchConfig {
	return w.cfg
}

func (w *Watcher) observe(res *Result, obs Observation) {
	res.Polls = obs.Poll
	res.Final = obs.Status
	res.Observations = append(res.Observations, obs)
	w.logger.Debug("observation", "app", res.App, "poll", obs.Poll, "state", obs.State,
		"health", obs.Status.Health, "sync", obs.Status.Sync, "elapsed", obs.Elapsed)
	if w.OnObserve != nil {
		w.OnObserve(obs)
	}
}

func aborted(res Result, err error) (Result, error) {
	res.State = StateAborted
	return res, fmt.Errorf("%w: %w", ErrAborted, err)
}

// sleep waits d or until ctx is done
func (w *Watcher) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.clock.After(d):
		return nil
	}
}

// WaitForCreation polls until app exists, bounded by the creation timeout.
// Fetch errors other than not-found are logged and polling continues.
func (w *Watcher) WaitForCreation(ctx context.Context, app string) (Result, error) {
	res := Result{App: app, Mode: ModePoll, State: StateCreationPending}
	start := w.clock.Now()
	timeout := w.cfg.CreationTimeout
	var lastErr error

	for poll := 1; ; poll++ {
		status, err := w.client.GetStatus(ctx, app)
		if ctx.Err() != nil {
			return aborted(res, ctx.Err())
		}
		res.Elapsed = w.clock.Now().Sub(start)
		if err == nil {
			w.observe(&res, Observation{Poll: poll, State: Classify(status), Status: status, Elapsed: res.Elapsed})
			res.State = Classify(status)
			return res, nil
		}
		if !errors.Is(err, argocd.ErrAppNotFound) {
			lastErr = err
			w.logger.Warn("status fetch failed while waiting for creation", "app", app, "err", err)
		}
		pending := models.DeploymentStatus{App: app, Health: models.HealthUnknown, Sync: models.SyncUnknown, ObservedAt: w.clock.Now()}
		w.observe(&res, Observation{Poll: poll, State: StateCreationPending, Status: pending, Elapsed: res.Elapsed, Err: err})

		if res.Elapsed >= timeout {
			return res, &AppCreationTimeoutError{App: app, Timeout: timeout, LastErr: lastErr}
		}
		if err := w.sleep(ctx, min(w.cfg.PollInterval, timeout-res.Elapsed)); err != nil {
			return aborted(res, err)
		}
	}
}

// Watch polls app until Healthy and Synced, Degraded or Missing, or the
// deployment timeout measured from entry elapses. The timeout is never reset
// by intermediate observations.
func (w *Watcher) Watch(ctx context.Context, app string) (Result, error) {
	res := Result{App: app, Mode: ModePoll, State: StateProgressing}
	start := w.clock.Now()
	timeout := w.cfg.DeploymentTimeout

	for poll := 1; ; poll++ {
		status, err := w.client.GetStatus(ctx, app)
		if ctx.Err() != nil {
			return aborted(res, ctx.Err())
		}
		res.Elapsed = w.clock.Now().Sub(start)

		obs := Observation{Poll: poll, Elapsed: res.Elapsed, Err: err}
		switch {
		case errors.Is(err, argocd.ErrAppNotFound):
			obs.Status = models.DeploymentStatus{App: app, Health: models.HealthMissing, Sync: models.SyncUnknown, ObservedAt: w.clock.Now(), Message: "application not found"}
		case err != nil:
			obs.Status = models.DeploymentStatus{App: app, Health: models.HealthUnknown, Sync: models.SyncUnknown, ObservedAt: w.clock.Now(), Message: err.Error()}
		default:
			obs.Status = status
		}
		obs.State = Classify(obs.Status)
		w.observe(&res, obs)
		res.State = obs.State

		if done, err := w.terminal(&res, timeout); done {
			return res, err
		}
		if err := w.sleep(ctx, min(w.cfg.PollInterval, timeout-res.Elapsed)); err != nil {
			return aborted(res, err)
		}
	}
}

// terminal applies the stop rules to the latest observation in res
func (w *Watcher) terminal(res *Result, timeout time.Duration) (bool, error) {
	switch res.State {
	case StateHealthySynced:
		w.logger.Info("deployment healthy and synced", "app", res.App, "polls", res.Polls, "elapsed", res.Elapsed)
		return true, nil
	case StateDegraded, StateMissing:
		return true, &DeploymentDegradedError{App: res.App, Status: res.Final}
	}
	if res.Elapsed >= timeout {
		res.State = StateTimeout
		return true, &DeploymentTimeoutError{App: res.App, Timeout: timeout, Last: res.Final}
	}
	return false, nil
}

// WatchDelegated blocks in the controller's wait primitive and classifies
// the final status with the same rules as Watch
func (w *Watcher) WatchDelegated(ctx context.Context, app string) (Result, error) {
	res := Result{App: app, Mode: ModeDelegated, State: StateProgressing}
	if w.waiter == nil {
		return res, errors.New("delegated wait is not available for this backend")
	}
	start := w.clock.Now()
	timeout := w.cfg.DeploymentTimeout

	status, err := w.waiter.WaitForStatus(ctx, app, timeout)
	if ctx.Err() != nil {
		return aborted(res, ctx.Err())
	}
	res.Elapsed = w.clock.Now().Sub(start)
	switch {
	case errors.Is(err, argocd.ErrAppNotFound):
		status = models.DeploymentStatus{App: app, Health: models.HealthMissing, Sync: models.SyncUnknown, ObservedAt: w.clock.Now(), Message: "application not found"}
	case err != nil:
		res.State = StateUnknown
		return res, fmt.Errorf("wait for %s: %w", app, err)
	}

	w.observe(&res, Observation{Poll: 1, State: Classify(status), Status: status, Elapsed: res.Elapsed})
	res.State = Classify(status)
	if done, err := w.terminal(&res, timeout); done {
		return res, err
	}
	// The wait returned without a terminal status, so its budget is spent
	res.State = StateTimeout
	return res, &DeploymentTimeoutError{App: app, Timeout: timeout, Last: res.Final}
}

// Await waits for the application to be created and then for a terminal
// deployment state using mode
func (w *Watcher) Await(ctx context.Context, app string, mode Mode) (Result, error) {
	created, err := w.WaitForCreation(ctx, app)
	if err != nil {
		return created, err
	}
	// The creation poll may already have seen a terminal state
	switch created.State {
	case StateHealthySynced:
		return created, nil
	case StateDegraded, StateMissing:
		return created, &DeploymentDegradedError{App: app, Status: created.Final}
	}

	// The creation poll already fetched the status once; wait an interval
	// before asking the controller again
	paused := w.clock.Now()
	if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
		return aborted(created, err)
	}
	created.Elapsed += w.clock.Now().Sub(paused)

	var res Result
	if mode == ModeDelegated {
		res, err = w.WatchDelegated(ctx, app)
	} else {
		res, err = w.Watch(ctx, app)
	}
	res.Observations = append(created.Observations, res.Observations...)
	res.Polls += created.Polls
	res.Elapsed += created.Elapsed
	return res, err
}
