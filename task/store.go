package task

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/nexus/comms"
)

// Store is the authority over task records and their event streams.
type Store interface {
	Create(input Input) State
	Get(id string) (State, error)
	List() []State
	UpdateStatus(id string, status Status) error
	SetSubtaskCount(id string, n int) error
	AddSubtaskResult(id string, r SubtaskResult) error
	SetResult(id string, r Result) error
	SetError(id string, msg string) error
	Publish(id string, ev Event) error
	Subscribe(id string) (*comms.Subscription[Event], error)
}

// Stats counts tasks by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type record struct {
	mu       sync.Mutex
	state    State
	subtasks int // -1 until decomposition declares a count
	bus      *comms.Bus[Event]
}

// MemoryStore keeps every task in process memory. Records live for the
// lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

// Create registers a new pending task with a fresh id.
func (s *MemoryStore) Create(input Input) State {
	now := s.now()
	rec := &record{
		state: State{
			ID:             uuid.NewString(),
			Input:          input,
			Status:         StatusPending,
			SubtaskResults: []SubtaskResult{},
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		subtasks: -1,
		bus:      comms.NewBus[Event](),
	}

	s.mu.Lock()
	s.records[rec.state.ID] = rec
	s.order = append(s.order, rec.state.ID)
	s.mu.Unlock()

	return rec.snapshot()
}

func (s *MemoryStore) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Get returns a copy of the task's current state.
func (s *MemoryStore) Get(id string) (State, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}
	return rec.snapshot(), nil
}

// List returns copies of every task in creation order.
func (s *MemoryStore) List() []State {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.order))
	for _, id := range s.order {
		recs = append(recs, s.records[id])
	}
	s.mu.RUnlock()

	out := make([]State, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	return out
}

// UpdateStatus moves the task to status, enforcing the lifecycle.
func (s *MemoryStore) UpdateStatus(id string, status Status) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.transition(status, s.now())
}

// SetSubtaskCount records how many subtasks the task was decomposed into.
// AddSubtaskResult refuses to append beyond it.
func (s *MemoryStore) SetSubtaskCount(id string, n int) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if n < 0 {
		return fmt.Errorf("task: set subtask count %d for %s: negative count", n, id)
	}
	rec.subtasks = n
	return nil
}

// AddSubtaskResult appends one agent's result to a non-terminal task.
func (s *MemoryStore) AddSubtaskResult(id string, r SubtaskResult) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state.Status.IsTerminal() {
		return fmt.Errorf("%w: add result to %s task %s", ErrInvalidTransition, rec.state.Status, id)
	}
	if rec.subtasks >= 0 && len(rec.state.SubtaskResults) >= rec.subtasks {
		return fmt.Errorf("%w: task %s has %d subtasks", ErrTooManyResults, id, rec.subtasks)
	}
	rec.state.SubtaskResults = append(rec.state.SubtaskResults, r)
	rec.state.UpdatedAt = s.now()
	return nil
}

// SetResult stores the merged result and completes the task.
func (s *MemoryStore) SetResult(id string, r Result) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := rec.transition(StatusCompleted, s.now()); err != nil {
		return err
	}
	rec.state.Result = &r
	return nil
}

// SetError stores the failure message and fails the task.
func (s *MemoryStore) SetError(id string, msg string) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := rec.transition(StatusFailed, s.now()); err != nil {
		return err
	}
	rec.state.Error = msg
	return nil
}

// Publish forwards ev to the task's live subscribers. It returns
// comms.ErrClosed once the task's terminal event has been published.
func (s *MemoryStore) Publish(id string, ev Event) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := rec.bus.Publish(ev); err != nil {
		return fmt.Errorf("task: publish %s event for %s: %w", ev.Type, id, err)
	}
	return nil
}

// Subscribe attaches a subscriber to the task's stream. A subscriber that
// attaches before the terminal event sees the full sequence; one attaching
// after it gets a finished subscription.
func (s *MemoryStore) Subscribe(id string) (*comms.Subscription[Event], error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.bus.Subscribe(), nil
}

// Stats counts tasks by status.
func (s *MemoryStore) Stats() Stats {
	var st Stats
	for _, ts := range s.List() {
		st.Total++
		switch ts.Status {
		case StatusPending:
			st.Pending++
		case StatusRunning:
			st.Running++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}

// transition must be called with rec.mu held.
func (rec *record) transition(next Status, now time.Time) error {
	cur := rec.state.Status
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, cur, next, rec.state.ID)
	}
	rec.state.Status = next
	rec.state.UpdatedAt = now
	return nil
}

func (rec *record) snapshot() State {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	st := rec.state
	st.SubtaskResults = slices.Clone(rec.state.SubtaskResults)
	if rec.state.Result != nil {
		r := *rec.state.Result
		r.AgentResults = slices.Clone(r.AgentResults)
		r.Findings = slices.Clone(r.Findings)
		st.Result = &r
	}
	return st
}
