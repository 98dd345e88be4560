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

// Package assignment implements the assignment transaction (C9): an
// atomic booking under a per-contractor exclusive logical lock, with
// re-validation of feasibility at commit time (spec §4.8). Reschedule
// and cancel run through the same transactional boundary.
package assignment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smartscheduler/core/internal/availability"
	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/config"
	"github.com/smartscheduler/core/internal/distance"
	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/errs"
	"github.com/smartscheduler/core/internal/events"
	"github.com/smartscheduler/core/internal/fatigue"
	"github.com/smartscheduler/core/internal/repo"
)

// RegionFunc derives a dispatch channel region tag from a job. Shared
// shape with coordinator.RegionFunc; kept as its own type so this
// package has no compile-time dependency on the coordinator.
type RegionFunc func(j domain.Job) string

func defaultRegion(j domain.Job) string {
	if j.Location.Zone != "" {
		return j.Location.Zone
	}
	return "unknown"
}

// lockTable hands out one single-slot permit channel per contractor id,
// lazily, so dispatchers racing to book the same contractor serialize
// against each other while distinct contractors proceed independently
// (spec §4.8 "Isolation"). A channel-based permit, rather than a
// sync.Mutex guarded by a separate goroutine + select/timeout, avoids
// leaking a goroutine that acquires the mutex after the caller has
// already given up — which would starve every future caller for that
// contractor since nothing would ever unlock it again.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]chan struct{}{}}
}

func (t *lockTable) forContractor(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		t.locks[id] = ch
	}
	return ch
}

// tryLock waits up to wait for the contractor's permit, reporting false
// on timeout (spec §4.8/§5: "times out the lock wait (default 750 ms)
// and reports Conflict"). Giving up never consumes the permit, so it
// remains available to the next caller.
func tryLock(ch chan struct{}, wait time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(wait):
		return false
	}
}

func unlock(ch chan struct{}) {
	ch <- struct{}{}
}

// Transaction wires the repositories and event sink needed to commit
// bookings.
type Transaction struct {
	Contractors repo.Contractors
	Jobs        repo.Jobs
	Assignments repo.Assignments
	Audits      repo.Audits

	Distance *distance.Service
	Sink     *events.Sink
	Clock    clock.Clock
	IDs      clock.IDProvider
	Region   RegionFunc

	locks *lockTable
}

// NewTransaction constructs a Transaction with its own lock table. dist is
// used to re-derive the ETA-based travel buffer (spec §4.3 step 3) around
// neighboring assignments when re-validating feasibility at commit time.
func NewTransaction(contractors repo.Contractors, jobs repo.Jobs, assignments repo.Assignments, audits repo.Audits, dist *distance.Service, sink *events.Sink, clk clock.Clock, ids clock.IDProvider) *Transaction {
	return &Transaction{
		Contractors: contractors,
		Jobs:        jobs,
		Assignments: assignments,
		Audits:      audits,
		Distance:    dist,
		Sink:        sink,
		Clock:       clk,
		IDs:         ids,
		Region:      defaultRegion,
		locks:       newLockTable(),
	}
}

// Assign runs the C9 booking steps under the contractor's exclusive
// lock (spec §4.8).
func (t *Transaction) Assign(ctx context.Context, req domain.AssignRequest) (domain.Assignment, error) {
	if t.Region == nil {
		t.Region = defaultRegion
	}
	if err := req.Validate(); err != nil {
		return domain.Assignment{}, errs.Wrap(errs.InvalidRequest, err)
	}

	settings := config.FromContext(ctx)
	lock := t.locks.forContractor(req.ContractorID)
	if !tryLock(lock, settings.LockWait()) {
		return domain.Assignment{}, errs.New(errs.Conflict, fmt.Sprintf("timed out waiting for contractor %s lock", req.ContractorID))
	}
	defer unlock(lock)

	job, err := t.Jobs.Get(ctx, req.JobID)
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.NotFound, err)
	}
	ct, err := t.Contractors.Get(ctx, req.ContractorID)
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.NotFound, err)
	}

	duration := time.Duration(job.DurationMin) * time.Minute
	if req.EndUtc.Sub(req.StartUtc) != duration {
		return domain.Assignment{}, errs.New(errs.InvalidRequest, "assignment duration does not match job duration")
	}
	if !job.ServiceWindow.Contains(req.StartUtc, req.EndUtc, time.Minute) {
		return domain.Assignment{}, errs.New(errs.InvalidRequest, "assignment interval falls outside the job's service window")
	}

	existing, err := t.Assignments.ListForContractorOverlapping(ctx, ct.ID, domain.Window{
		Start: req.StartUtc.Add(-24 * time.Hour), End: req.EndUtc.Add(24 * time.Hour),
	})
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.Degraded, err)
	}

	if err := t.reverify(ctx, job, ct, req.StartUtc, req.EndUtc, existing, settings); err != nil {
		return domain.Assignment{}, err
	}

	now := t.Clock.Now()
	source := domain.SourceManual
	auditID := ""
	if audit, err := t.Audits.LatestForJob(ctx, job.ID); err == nil {
		source = domain.SourceAuto
		auditID = audit.ID
	}

	a := domain.Assignment{
		ID:           t.IDs.NewID(),
		JobID:        job.ID,
		ContractorID: ct.ID,
		Start:        req.StartUtc,
		End:          req.EndUtc,
		Source:       source,
		AuditID:      auditID,
		Status:       domain.AssignmentConfirmed,
	}
	if err := t.Assignments.Create(ctx, a); err != nil {
		return domain.Assignment{}, errs.Wrap(errs.Conflict, err)
	}
	if auditID != "" {
		_ = t.Audits.MarkSelected(ctx, auditID, ct.ID)
	}

	region := t.Region(job)
	_ = t.Sink.Publish(ctx, domain.Event{
		Type: domain.EventJobAssigned,
		Payload: map[string]any{
			"jobId": job.ID, "contractorId": ct.ID,
			"startUtc": req.StartUtc, "endUtc": req.EndUtc, "source": source,
		},
		Channels:    []string{events.RegionChannel(region), events.ContractorChannel(ct.ID)},
		PublishedAt: now,
	})

	return a, nil
}

// Cancel marks an assignment cancelled and emits JobCancelled.
func (t *Transaction) Cancel(ctx context.Context, assignmentID, reason, actor string) error {
	a, err := t.Assignments.Get(ctx, assignmentID)
	if err != nil {
		return errs.Wrap(errs.NotFound, err)
	}
	lock := t.locks.forContractor(a.ContractorID)
	settings := config.FromContext(ctx)
	if !tryLock(lock, settings.LockWait()) {
		return errs.New(errs.Conflict, fmt.Sprintf("timed out waiting for contractor %s lock", a.ContractorID))
	}
	defer unlock(lock)

	a.Status = domain.AssignmentCancelled
	if err := t.Assignments.Update(ctx, a); err != nil {
		return errs.Wrap(errs.Conflict, err)
	}

	job, _ := t.Jobs.Get(ctx, a.JobID)
	region := t.Region(job)
	_ = t.Sink.Publish(ctx, domain.Event{
		Type:     domain.EventJobCancelled,
		Payload:  map[string]any{"jobId": a.JobID, "reason": reason},
		Channels: []string{events.RegionChannel(region), events.ContractorChannel(a.ContractorID)},
	})
	return nil
}

// Reschedule cancels the existing assignment and creates a replacement in
// one transactional boundary, emitting a single JobRescheduled event
// rather than the separate cancel/assign events each step would produce
// on its own (spec §4.8: "reschedule is cancel+create with a single
// event JobRescheduled, atomic").
func (t *Transaction) Reschedule(ctx context.Context, assignmentID string, newStart, newEnd time.Time, actor string) (domain.Assignment, error) {
	old, err := t.Assignments.Get(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.NotFound, err)
	}

	lock := t.locks.forContractor(old.ContractorID)
	settings := config.FromContext(ctx)
	if !tryLock(lock, settings.LockWait()) {
		return domain.Assignment{}, errs.New(errs.Conflict, fmt.Sprintf("timed out waiting for contractor %s lock", old.ContractorID))
	}
	defer unlock(lock)

	job, err := t.Jobs.Get(ctx, old.JobID)
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.NotFound, err)
	}
	ct, err := t.Contractors.Get(ctx, old.ContractorID)
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.NotFound, err)
	}

	duration := time.Duration(job.DurationMin) * time.Minute
	if newEnd.Sub(newStart) != duration {
		return domain.Assignment{}, errs.New(errs.InvalidRequest, "rescheduled duration does not match job duration")
	}
	if !job.ServiceWindow.Contains(newStart, newEnd, time.Minute) {
		return domain.Assignment{}, errs.New(errs.InvalidRequest, "rescheduled interval falls outside the job's service window")
	}

	existing, err := t.Assignments.ListForContractorOverlapping(ctx, ct.ID, domain.Window{
		Start: newStart.Add(-24 * time.Hour), End: newEnd.Add(24 * time.Hour),
	})
	if err != nil {
		return domain.Assignment{}, errs.Wrap(errs.Degraded, err)
	}
	withoutOld := make([]domain.Assignment, 0, len(existing))
	for _, a := range existing {
		if a.ID != old.ID {
			withoutOld = append(withoutOld, a)
		}
	}
	if err := t.reverify(ctx, job, ct, newStart, newEnd, withoutOld, settings); err != nil {
		return domain.Assignment{}, err
	}

	old.Status = domain.AssignmentCancelled
	if err := t.Assignments.Update(ctx, old); err != nil {
		return domain.Assignment{}, errs.Wrap(errs.Conflict, err)
	}

	replacement := domain.Assignment{
		ID:           t.IDs.NewID(),
		JobID:        old.JobID,
		ContractorID: old.ContractorID,
		Start:        newStart,
		End:          newEnd,
		Source:       old.Source,
		AuditID:      old.AuditID,
		Status:       domain.AssignmentConfirmed,
	}
	if err := t.Assignments.Create(ctx, replacement); err != nil {
		return domain.Assignment{}, errs.Wrap(errs.Conflict, err)
	}

	region := t.Region(job)
	_ = t.Sink.Publish(ctx, domain.Event{
		Type: domain.EventJobRescheduled,
		Payload: map[string]any{
			"jobId": old.JobID, "oldStartUtc": old.Start, "newStartUtc": newStart, "contractorId": ct.ID,
		},
		Channels: []string{events.RegionChannel(region), events.ContractorChannel(ct.ID)},
	})

	return replacement, nil
}

// reverify re-runs C3/C4/C5 against the exact proposed interval (spec
// §4.8 step 2: "Reject with Conflict if not feasible"), using the same
// ETA-derived travel buffer the coordinator used to recommend it (spec
// §4.3 step 3: B = max(min_buffer, eta_min+fixed_padding)) rather than a
// flat minimum, so a booking that is only feasible because of a smaller
// buffer never slips past this final gate.
func (t *Transaction) reverify(ctx context.Context, job domain.Job, ct domain.Contractor, start, end time.Time, existing []domain.Assignment, settings config.Settings) error {
	windows, err := availability.Compute(ct, domain.Window{Start: start.Add(-24 * time.Hour), End: end.Add(24 * time.Hour)}, end.Sub(start), existing, t.bufferFunc(ctx, job, settings))
	if err != nil {
		return errs.Wrap(errs.Conflict, err)
	}
	if !containsInterval(windows, start, end) {
		return errs.New(errs.Conflict, "the proposed interval is no longer feasible")
	}
	if err := fatigue.Check(ct, start, end, existing); err != nil {
		return err
	}
	return nil
}

// bufferFunc mirrors coordinator.bufferFunc: the ETA from the neighboring
// assignment's job to this job's location, floored at the configured
// minimum and padded by a fixed amount (spec §4.3 step 3). Falls back to
// the flat minimum when no distance service is wired (e.g. a test
// Transaction built without one) or the neighbor's job can't be loaded.
func (t *Transaction) bufferFunc(ctx context.Context, job domain.Job, settings config.Settings) availability.BufferFunc {
	minBuffer := time.Duration(settings.BufferMinMinutes) * time.Minute
	padding := time.Duration(settings.BufferPaddingMinutes) * time.Minute
	return func(a domain.Assignment) time.Duration {
		if t.Distance == nil {
			return minBuffer
		}
		otherJob, err := t.Jobs.Get(ctx, a.JobID)
		if err != nil {
			return minBuffer
		}
		est := t.Distance.CheapMatrix(otherJob.Location.LatLon, []domain.LatLon{job.Location.LatLon})[0]
		candidate := time.Duration(est.ETAMin)*time.Minute + padding
		if candidate < minBuffer {
			return minBuffer
		}
		return candidate
	}
}

func containsInterval(windows []availability.Window, start, end time.Time) bool {
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}
