package probe

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediaprobe/server/internal/shared/metrics"
)

// Runner drives one workflow for one endpoint: it owns the endpoint's state
// machine, timestamps the run, and converts every failure into a terminal
// Failed state. No error ever escapes to affect another endpoint's run.
type Runner struct {
	mu        sync.RWMutex
	workflows map[Kind]Workflow

	store   *StateStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a runner over the given state store.
func NewRunner(store *StateStore, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		workflows: make(map[Kind]Workflow),
		store:     store,
		logger:    logger.Named("runner"),
		metrics:   m,
	}
}

// Register registers a workflow implementation.
func (r *Runner) Register(w Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.Kind()] = w
}

// Run executes one workflow against one endpoint and returns the terminal
// RunState. Intermediate snapshots are emitted through the state store as
// the run progresses.
func (r *Runner) Run(ctx context.Context, ep Endpoint, kind Kind, prompt string, images []ReferenceImage, token string) *RunState {
	runID := uuid.New()
	start := time.Now()
	gen := r.store.Begin(ep.ID, runID, kind, initialStatus(kind))

	rep := &stateReporter{store: r.store, endpointID: ep.ID, gen: gen}

	if token == "" {
		rep.Logf("Run aborted: %v", ErrNoCredential)
		return r.finish(ep, kind, gen, start, nil, ErrNoCredential)
	}

	r.mu.RLock()
	wf, ok := r.workflows[kind]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("no workflow registered for kind %q", kind)
		rep.Logf("Run aborted: %v", err)
		return r.finish(ep, kind, gen, start, nil, err)
	}

	in := &Input{
		Endpoint: ep,
		Prompt:   prompt,
		Seed:     rand.Int64N(1 << 31),
		Token:    token,
		Images:   images,
	}

	r.logger.Info("run started",
		zap.String("endpoint", ep.ID),
		zap.String("workflow", string(kind)),
		zap.String("run_id", runID.String()))

	result, err := r.execute(ctx, wf, in, rep)
	return r.finish(ep, kind, gen, start, result, err)
}

// execute invokes the workflow and converts panics into run failures so a
// misbehaving adapter cannot take down sibling endpoint runs.
func (r *Runner) execute(ctx context.Context, wf Workflow, in *Input, rep Reporter) (result *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("workflow panic: %v", rec)
		}
	}()
	return wf.Run(ctx, in, rep)
}

// finish applies the terminal transition, setting the duration exactly once.
func (r *Runner) finish(ep Endpoint, kind Kind, gen uint64, start time.Time, result *Result, err error) *RunState {
	elapsed := time.Since(start).Seconds()

	var terminal *RunState
	applied := r.store.Apply(ep.ID, gen, func(st *RunState) {
		st.DurationSeconds = &elapsed
		if err != nil {
			st.Status = StatusFailed
			st.ErrorMessage = err.Error()
			st.Logs = append(st.Logs, LogEntry{
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("Run failed after %.1fs: %v", elapsed, err),
			})
		} else {
			st.Status = StatusSuccess
			st.ResultKind = result.Kind
			st.ResultPayload = result.Payload
			st.Logs = append(st.Logs, LogEntry{
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("Run succeeded in %.1fs", elapsed),
			})
		}
		terminal = st.Clone()
	})

	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	r.metrics.RecordRun(ep.ID, string(kind), outcome, elapsed)

	if err != nil {
		r.logger.Warn("run failed",
			zap.String("endpoint", ep.ID),
			zap.String("workflow", string(kind)),
			zap.Float64("duration_s", elapsed),
			zap.Error(err))
	} else {
		r.logger.Info("run succeeded",
			zap.String("endpoint", ep.ID),
			zap.String("workflow", string(kind)),
			zap.Float64("duration_s", elapsed))
	}

	if applied {
		return terminal
	}

	// The run was superseded while in flight; its effects are discarded from
	// the store but the caller still gets the terminal view.
	st := &RunState{
		EndpointID:      ep.ID,
		Workflow:        kind,
		Status:          StatusSuccess,
		Logs:            []LogEntry{},
		DurationSeconds: &elapsed,
		StartedAt:       start,
	}
	if err != nil {
		st.Status = StatusFailed
		st.ErrorMessage = err.Error()
	} else {
		st.ResultKind = result.Kind
		st.ResultPayload = result.Payload
	}
	return st
}

// stateReporter routes workflow progress into the endpoint's state slot,
// tagged with the run's generation so superseded runs cannot write.
type stateReporter struct {
	store      *StateStore
	endpointID string
	gen        uint64
}

func (r *stateReporter) Logf(format string, args ...any) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Message:   fmt.Sprintf(format, args...),
	}
	r.store.Apply(r.endpointID, r.gen, func(st *RunState) {
		st.Logs = append(st.Logs, entry)
	})
}

func (r *stateReporter) SetStatus(status Status) {
	r.store.Apply(r.endpointID, r.gen, func(st *RunState) {
		// Status never regresses within one run.
		if statusRank(status) > statusRank(st.Status) && !st.Status.Terminal() {
			st.Status = status
		}
	})
}
