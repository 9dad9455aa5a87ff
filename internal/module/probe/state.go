package probe

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one endpoint's run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition occurs for this run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// statusRank orders statuses so a run never regresses within one run.
func statusRank(s Status) int {
	switch s {
	case StatusIdle:
		return 0
	case StatusUploading:
		return 1
	case StatusRunning:
		return 2
	case StatusSuccess, StatusFailed:
		return 3
	default:
		return 0
	}
}

// ResultKind classifies a run's terminal payload.
type ResultKind string

const (
	ResultNone  ResultKind = ""
	ResultImage ResultKind = "image"
	ResultVideo ResultKind = "video"
)

// LogEntry is one timestamped diagnostic line within a run.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// RunState is the observable state of the in-flight or most recent run for
// one endpoint. A new run overwrites it; prior results are not archived.
type RunState struct {
	EndpointID      string     `json:"endpoint_id"`
	RunID           uuid.UUID  `json:"run_id"`
	Workflow        Kind       `json:"workflow,omitempty"`
	Status          Status     `json:"status"`
	Logs            []LogEntry `json:"logs"`
	ResultKind      ResultKind `json:"result_kind,omitempty"`
	ResultPayload   string     `json:"result_payload,omitempty"`
	ErrorMessage    string     `json:"error,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
}

// Clone returns a snapshot safe to hand to observers.
func (s *RunState) Clone() *RunState {
	cp := *s
	cp.Logs = make([]LogEntry, len(s.Logs))
	copy(cp.Logs, s.Logs)
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		cp.DurationSeconds = &d
	}
	return &cp
}

type slot struct {
	generation uint64
	state      *RunState
}

// StateStore holds one RunState slot per endpoint. Slots are replaced
// atomically; a per-slot generation counter guards against a superseded
// run's delayed effects overwriting a fresher run.
type StateStore struct {
	mu    sync.RWMutex
	slots map[string]*slot

	subMu       sync.Mutex
	subscribers map[int]func(*RunState)
	nextSubID   int
}

// NewStateStore seeds an idle slot for every endpoint in the fleet.
func NewStateStore(fleet *Fleet) *StateStore {
	s := &StateStore{
		slots:       make(map[string]*slot, fleet.Len()),
		subscribers: make(map[int]func(*RunState)),
	}
	for _, ep := range fleet.All() {
		s.slots[ep.ID] = &slot{
			state: &RunState{
				EndpointID: ep.ID,
				Status:     StatusIdle,
				Logs:       []LogEntry{},
			},
		}
	}
	return s
}

// Begin resets an endpoint's slot for a new run and returns the generation
// that authorizes subsequent updates. Effects from earlier generations are
// discarded.
func (s *StateStore) Begin(endpointID string, runID uuid.UUID, workflow Kind, initial Status) uint64 {
	s.mu.Lock()
	sl, ok := s.slots[endpointID]
	if !ok {
		sl = &slot{}
		s.slots[endpointID] = sl
	}
	sl.generation++
	gen := sl.generation
	sl.state = &RunState{
		EndpointID: endpointID,
		RunID:      runID,
		Workflow:   workflow,
		Status:     initial,
		Logs:       []LogEntry{},
		StartedAt:  time.Now(),
	}
	snapshot := sl.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return gen
}

// Apply mutates an endpoint's slot if gen is still the latest generation.
// Returns false when the update belongs to a superseded run.
func (s *StateStore) Apply(endpointID string, gen uint64, mutate func(*RunState)) bool {
	s.mu.Lock()
	sl, ok := s.slots[endpointID]
	if !ok || sl.generation != gen {
		s.mu.Unlock()
		return false
	}
	mutate(sl.state)
	snapshot := sl.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

// Get returns a snapshot of an endpoint's current run state.
func (s *StateStore) Get(endpointID string) (*RunState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[endpointID]
	if !ok {
		return nil, false
	}
	return sl.state.Clone(), true
}

// All returns snapshots for every endpoint.
func (s *StateStore) All() []*RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RunState, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.state.Clone())
	}
	return out
}

// Subscribe registers an observer for state snapshots. Returns an
// unsubscribe function. Observers only ever see fully-formed snapshots.
func (s *StateStore) Subscribe(fn func(*RunState)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *StateStore) notify(snapshot *RunState) {
	s.subMu.Lock()
	subs := make([]func(*RunState), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
