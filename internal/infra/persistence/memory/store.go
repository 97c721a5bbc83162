// Package memory provides an in-memory implementation of the study persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"panelbench/pkg/study"
)

// Compile-time contract assertion ensuring memory.Store adheres to the study persistence interface.
var _ study.PersistentStore = (*Store)(nil)

type memoryState struct {
	studies map[string]study.Study
	runs    map[string]study.Run
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Studies map[string]study.Study `json:"studies"`
	Runs    map[string]study.Run   `json:"runs"`
}

func newMemoryState() memoryState {
	return memoryState{
		studies: make(map[string]study.Study),
		runs:    make(map[string]study.Run),
	}
}

func (st memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range st.studies {
		out.studies[k] = study.CloneStudy(v)
	}
	for k, v := range st.runs {
		out.runs[k] = study.CloneRun(v)
	}
	return out
}

func snapshotFromMemoryState(st memoryState) Snapshot {
	s := Snapshot{
		Studies: make(map[string]study.Study, len(st.studies)),
		Runs:    make(map[string]study.Run, len(st.runs)),
	}
	for k, v := range st.studies {
		s.Studies[k] = study.CloneStudy(v)
	}
	for k, v := range st.runs {
		s.Runs[k] = study.CloneRun(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	st := newMemoryState()
	for k, v := range s.Studies {
		st.studies[k] = study.CloneStudy(v)
	}
	for k, v := range s.Runs {
		st.runs[k] = study.CloneRun(v)
	}
	return st
}

// migrateSnapshot repairs snapshots written by older builds: nil buckets become
// empty maps and runs referencing a deleted study lose the dangling reference.
func migrateSnapshot(s Snapshot) Snapshot {
	if s.Studies == nil {
		s.Studies = map[string]study.Study{}
	}
	if s.Runs == nil {
		s.Runs = map[string]study.Run{}
	}
	for id, run := range s.Runs {
		if run.StudyID == "" {
			continue
		}
		if _, ok := s.Studies[run.StudyID]; !ok {
			run.StudyID = ""
			s.Runs[id] = run
		}
	}
	return s
}

// Store holds all study state in process memory guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider, primarily for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

type transaction struct {
	state memoryState
	now   time.Time
}

// RunInTransaction clones the state, applies fn, and commits the clone only if
// fn returns nil. A failed callback leaves the store untouched.
func (s *Store) RunInTransaction(_ context.Context, fn func(study.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (tx *transaction) CreateStudy(st study.Study) (study.Study, error) {
	if st.ID == "" {
		st.ID = newID()
	}
	st.CreatedAt = tx.now
	st.UpdatedAt = tx.now
	tx.state.studies[st.ID] = study.CloneStudy(st)
	return st, nil
}

func (tx *transaction) UpdateStudy(id string, mutator func(*study.Study) error) (study.Study, error) {
	current, ok := tx.state.studies[id]
	if !ok {
		return study.Study{}, study.NewNotFound("study", id)
	}
	updated := study.CloneStudy(current)
	if err := mutator(&updated); err != nil {
		return study.Study{}, err
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.studies[id] = study.CloneStudy(updated)
	return updated, nil
}

func (tx *transaction) DeleteStudy(id string) error {
	if _, ok := tx.state.studies[id]; !ok {
		return study.NewNotFound("study", id)
	}
	delete(tx.state.studies, id)
	for rid, run := range tx.state.runs {
		if run.StudyID == id {
			run.StudyID = ""
			tx.state.runs[rid] = run
		}
	}
	return nil
}

func (tx *transaction) FindStudy(id string) (study.Study, bool) {
	st, ok := tx.state.studies[id]
	if !ok {
		return study.Study{}, false
	}
	return study.CloneStudy(st), true
}

func (tx *transaction) CreateRun(r study.Run) (study.Run, error) {
	if r.StudyID != "" {
		if _, ok := tx.state.studies[r.StudyID]; !ok {
			return study.Run{}, study.NewNotFound("study", r.StudyID)
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = study.CloneRun(r)
	return study.CloneRun(r), nil
}

func (tx *transaction) UpdateRun(id string, mutator func(*study.Run) error) (study.Run, error) {
	current, ok := tx.state.runs[id]
	if !ok {
		return study.Run{}, study.NewNotFound("run", id)
	}
	updated := study.CloneRun(current)
	if err := mutator(&updated); err != nil {
		return study.Run{}, err
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.runs[id] = study.CloneRun(updated)
	return study.CloneRun(updated), nil
}

func (tx *transaction) DeleteRun(id string) error {
	if _, ok := tx.state.runs[id]; !ok {
		return study.NewNotFound("run", id)
	}
	delete(tx.state.runs, id)
	return nil
}

func (tx *transaction) FindRun(id string) (study.Run, bool) {
	r, ok := tx.state.runs[id]
	if !ok {
		return study.Run{}, false
	}
	return study.CloneRun(r), true
}

// GetStudy returns the study with the given id.
func (s *Store) GetStudy(id string) (study.Study, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.studies[id]
	if !ok {
		return study.Study{}, false
	}
	return study.CloneStudy(st), true
}

// ListStudies returns all studies ordered by creation time, then id.
func (s *Store) ListStudies() []study.Study {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]study.Study, 0, len(s.state.studies))
	for _, st := range s.state.studies {
		out = append(out, study.CloneStudy(st))
	}
	sortStudies(out)
	return out
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(id string) (study.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.runs[id]
	if !ok {
		return study.Run{}, false
	}
	return study.CloneRun(r), true
}

// ListRuns returns all runs ordered by creation time, then id.
func (s *Store) ListRuns() []study.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]study.Run, 0, len(s.state.runs))
	for _, r := range s.state.runs {
		out = append(out, study.CloneRun(r))
	}
	sortRuns(out)
	return out
}

func sortStudies(out []study.Study) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func sortRuns(out []study.Run) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
