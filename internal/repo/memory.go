/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartscheduler/core/internal/domain"
)

// memoryStore holds every table behind one mutex. It is not exported
// directly; callers get typed facades (ContractorStore, JobStore, ...)
// that each satisfy exactly one repository interface, since Go forbids
// two methods of the same name with different signatures on one type
// and the repo interfaces all share names like Get and Put.
type memoryStore struct {
	mu           sync.RWMutex
	contractors  map[string]domain.Contractor
	jobs         map[string]domain.Job
	assignments  map[string]domain.Assignment
	audits       map[string]domain.AuditRecommendation
	auditsByJob  map[string][]string // jobID -> audit IDs, in creation order
	weights      map[int]domain.WeightsConfig
	activeWeight int
	catalogue    map[string]struct{}
}

// MemoryStore is the in-memory reference implementation of the full
// persisted-state layout (spec §6: "abstract — any relational store
// suffices"). It bundles one facade per repository interface so a
// caller can wire each into the component that needs it.
type MemoryStore struct {
	Contractors    *ContractorStore
	Jobs           *JobStore
	Assignments    *AssignmentStore
	Audits         *AuditStore
	Weights        *WeightStore
	SkillCatalogue *SkillStore
}

// NewMemoryStore constructs an empty store seeded with the given skill
// catalogue and an initial WeightsConfig marked active.
func NewMemoryStore(catalogue []string, initial domain.WeightsConfig) *MemoryStore {
	cat := map[string]struct{}{}
	for _, s := range catalogue {
		cat[s] = struct{}{}
	}
	core := &memoryStore{
		contractors:  map[string]domain.Contractor{},
		jobs:         map[string]domain.Job{},
		assignments:  map[string]domain.Assignment{},
		audits:       map[string]domain.AuditRecommendation{},
		auditsByJob:  map[string][]string{},
		weights:      map[int]domain.WeightsConfig{initial.Version: initial},
		activeWeight: initial.Version,
		catalogue:    cat,
	}
	return &MemoryStore{
		Contractors:    &ContractorStore{core},
		Jobs:           &JobStore{core},
		Assignments:    &AssignmentStore{core},
		Audits:         &AuditStore{core},
		Weights:        &WeightStore{core},
		SkillCatalogue: &SkillStore{core},
	}
}

// ContractorStore implements Contractors.
type ContractorStore struct{ s *memoryStore }

func (c *ContractorStore) Get(ctx context.Context, id string) (domain.Contractor, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	v, ok := c.s.contractors[id]
	if !ok {
		return domain.Contractor{}, fmt.Errorf("contractor %s: %w", id, ErrNotFound)
	}
	return v, nil
}

func (c *ContractorStore) ListBySkills(ctx context.Context, skills []string) ([]domain.Contractor, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []domain.Contractor
	for _, v := range c.s.contractors {
		if v.HasAllSkills(skills) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *ContractorStore) Put(ctx context.Context, v domain.Contractor) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.contractors[v.ID] = v
	return nil
}

// JobStore implements Jobs.
type JobStore struct{ s *memoryStore }

func (j *JobStore) Get(ctx context.Context, id string) (domain.Job, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()
	v, ok := j.s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return v, nil
}

func (j *JobStore) Put(ctx context.Context, v domain.Job) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	j.s.jobs[v.ID] = v
	return nil
}

// AssignmentStore implements Assignments.
type AssignmentStore struct{ s *memoryStore }

func (a *AssignmentStore) Get(ctx context.Context, id string) (domain.Assignment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	v, ok := a.s.assignments[id]
	if !ok {
		return domain.Assignment{}, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	return v, nil
}

func (a *AssignmentStore) ListForContractorOverlapping(ctx context.Context, contractorID string, window domain.Window) ([]domain.Assignment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []domain.Assignment
	for _, v := range a.s.assignments {
		if v.ContractorID != contractorID || !v.Active() {
			continue
		}
		if v.Start.Before(window.End) && window.Start.Before(v.End) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (a *AssignmentStore) ListForContractorSince(ctx context.Context, contractorID string, since time.Time) ([]domain.Assignment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []domain.Assignment
	for _, v := range a.s.assignments {
		if v.ContractorID != contractorID || !v.Active() {
			continue
		}
		if v.Start.After(since) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (a *AssignmentStore) ListForJob(ctx context.Context, jobID string) ([]domain.Assignment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []domain.Assignment
	for _, v := range a.s.assignments {
		if v.JobID == jobID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (a *AssignmentStore) Create(ctx context.Context, v domain.Assignment) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, exists := a.s.assignments[v.ID]; exists {
		return fmt.Errorf("assignment %s already exists", v.ID)
	}
	a.s.assignments[v.ID] = v
	return nil
}

func (a *AssignmentStore) Update(ctx context.Context, v domain.Assignment) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, exists := a.s.assignments[v.ID]; !exists {
		return fmt.Errorf("assignment %s: %w", v.ID, ErrNotFound)
	}
	a.s.assignments[v.ID] = v
	return nil
}

// AuditStore implements Audits.
type AuditStore struct{ s *memoryStore }

func (a *AuditStore) Create(ctx context.Context, v domain.AuditRecommendation) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audits[v.ID] = v
	a.s.auditsByJob[v.JobID] = append(a.s.auditsByJob[v.JobID], v.ID)
	return nil
}

func (a *AuditStore) LatestForJob(ctx context.Context, jobID string) (domain.AuditRecommendation, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	ids := a.s.auditsByJob[jobID]
	if len(ids) == 0 {
		return domain.AuditRecommendation{}, fmt.Errorf("no audit for job %s: %w", jobID, ErrNotFound)
	}
	return a.s.audits[ids[len(ids)-1]], nil
}

func (a *AuditStore) MarkSelected(ctx context.Context, auditID, contractorID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	v, ok := a.s.audits[auditID]
	if !ok {
		return fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
	}
	v.SelectedContractorID = contractorID
	a.s.audits[auditID] = v
	return nil
}

// WeightStore implements Weights.
type WeightStore struct{ s *memoryStore }

func (w *WeightStore) Active(ctx context.Context) (domain.WeightsConfig, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	v, ok := w.s.weights[w.s.activeWeight]
	if !ok {
		return domain.WeightsConfig{}, fmt.Errorf("no active weights config: %w", ErrNotFound)
	}
	return v, nil
}

func (w *WeightStore) Get(ctx context.Context, version int) (domain.WeightsConfig, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	v, ok := w.s.weights[version]
	if !ok {
		return domain.WeightsConfig{}, fmt.Errorf("weights version %d: %w", version, ErrNotFound)
	}
	return v, nil
}

func (w *WeightStore) MarkReferenced(ctx context.Context, version int) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	v, ok := w.s.weights[version]
	if !ok {
		return fmt.Errorf("weights version %d: %w", version, ErrNotFound)
	}
	v.Referenced = true
	w.s.weights[version] = v
	return nil
}

// Put registers a new weights config version. Rejected if the version
// already exists and was already referenced by an audit (spec §3:
// immutable once referenced).
func (w *WeightStore) Put(ctx context.Context, v domain.WeightsConfig) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if existing, ok := w.s.weights[v.Version]; ok && existing.Referenced {
		return fmt.Errorf("weights version %d is immutable: already referenced by an audit", v.Version)
	}
	w.s.weights[v.Version] = v
	return nil
}

// SetActive switches the version future requests pin to.
func (w *WeightStore) SetActive(ctx context.Context, version int) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if _, ok := w.s.weights[version]; !ok {
		return fmt.Errorf("weights version %d: %w", version, ErrNotFound)
	}
	w.s.activeWeight = version
	return nil
}

// SkillStore implements SkillCatalogue.
type SkillStore struct{ s *memoryStore }

func (sk *SkillStore) All(ctx context.Context) (map[string]struct{}, error) {
	sk.s.mu.RLock()
	defer sk.s.mu.RUnlock()
	out := make(map[string]struct{}, len(sk.s.catalogue))
	for k := range sk.s.catalogue {
		out[k] = struct{}{}
	}
	return out, nil
}

// Add registers a new tag in the catalogue.
func (sk *SkillStore) Add(skill string) {
	sk.s.mu.Lock()
	defer sk.s.mu.Unlock()
	sk.s.catalogue[skill] = struct{}{}
}
