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

// Package coordinator implements the recommendation coordinator (C8): it
// drives C2 through C7 concurrently per request, persists the audit
// trail, and emits RecommendationReady (spec §4.7). It never fails with
// a server error for data unavailability — a hard deadline or a
// provider outage degrades to a partial, flagged result instead.
package coordinator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/smartscheduler/core/internal/availability"
	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/config"
	"github.com/smartscheduler/core/internal/distance"
	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/events"
	"github.com/smartscheduler/core/internal/fatigue"
	"github.com/smartscheduler/core/internal/logging"
	"github.com/smartscheduler/core/internal/repo"
	"github.com/smartscheduler/core/internal/scoring"
	"github.com/smartscheduler/core/internal/slots"
)

// RegionFunc derives a dispatch channel region tag from a job (spec §6:
// "Region derivation is pluggable (default: first administrative
// subdivision of the job address)"). The default implementation below
// falls back to the job location's IANA zone, since job addresses carry
// no administrative-subdivision field in this model (see DESIGN.md).
type RegionFunc func(j domain.Job) string

// DefaultRegion is the RegionFunc used when none is supplied.
func DefaultRegion(j domain.Job) string {
	if j.Location.Zone != "" {
		return j.Location.Zone
	}
	return "unknown"
}

// Coordinator wires repositories, the distance service, and the event
// sink into the C8 recommendation pipeline.
type Coordinator struct {
	Contractors repo.Contractors
	Jobs        repo.Jobs
	Assignments repo.Assignments
	Audits      repo.Audits
	Weights     repo.Weights

	Distance *distance.Service
	Sink     *events.Sink
	Clock    clock.Clock
	IDs      clock.IDProvider
	Region   RegionFunc
}

// Result is the wire shape of spec §6's POST /recommendations response.
type Result struct {
	RequestID     string
	JobID         string
	Ranked        []domain.RankedCandidate
	ConfigVersion int
	GeneratedAt   time.Time
	Degraded      bool
}

type candidateWork struct {
	contractor domain.Contractor
	estimate   distance.Estimate
	dropped    bool
	reason     domain.CandidateDropReason
}

// Recommend runs the full C8 pipeline for req, bounded by
// settings.RecommendDeadline (spec §4.7, §6 "p95 500 ms").
func (c *Coordinator) Recommend(ctx context.Context, req domain.RecommendRequest) (Result, error) {
	if c.Region == nil {
		c.Region = DefaultRegion
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	req = req.WithDefaults()

	settings := config.FromContext(ctx)
	log := logging.FromContext(ctx)
	deadline := settings.RecommendDeadline()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	now := c.Clock.Now()
	requestID := c.IDs.NewID()
	degraded := false

	job, err := c.Jobs.Get(ctx, req.JobID)
	if err != nil {
		return Result{RequestID: requestID, JobID: req.JobID, GeneratedAt: now, Degraded: true}, nil
	}

	weights, err := c.Weights.Active(ctx)
	if err != nil {
		weights = domain.WeightsConfig{WeightAvailability: 0.25, WeightRating: 0.25, WeightDistance: 0.25, WeightRotation: 0.25, DistanceCapM: settings.ScoreDMaxM, HorizonFloorMin: settings.ScoreHorizonFloorMin, RotationCap: settings.RotationCap}
		degraded = true
	}
	if weights.DistanceCapM <= 0 {
		weights.DistanceCapM = settings.ScoreDMaxM
	}
	if weights.HorizonFloorMin <= 0 {
		weights.HorizonFloorMin = settings.ScoreHorizonFloorMin
	}
	if weights.RotationCap <= 0 {
		weights.RotationCap = settings.RotationCap
	}

	contractors, err := c.Contractors.ListBySkills(ctx, job.RequiredSkills)
	if err != nil {
		degraded = true
		contractors = nil
	}

	dMax := weights.DistanceCapM
	destinations := lo.Map(contractors, func(ct domain.Contractor, _ int) domain.LatLon { return ct.Base.LatLon })
	cheap := c.Distance.CheapMatrix(job.Location.LatLon, destinations)

	work := make([]candidateWork, len(contractors))
	for i, ct := range contractors {
		work[i] = candidateWork{contractor: ct, estimate: cheap[i]}
		if cheap[i].DistanceM > dMax {
			work[i].dropped = true
			work[i].reason = domain.DropBeyondDistance
		}
	}

	refineTopK(ctx, c.Distance, job.Location.LatLon, work, settings.CandidatePrefilterK, now)

	requestHash, err := hashstructure.Hash(struct {
		Job     domain.Job
		Version int
	}{job, weights.Version}, hashstructure.FormatV2, nil)
	if err != nil {
		requestHash = 0
	}

	audit := domain.AuditRecommendation{
		ID:            c.IDs.NewID(),
		JobID:         job.ID,
		RequestSnapshot: req,
		RequestHash:   fmt.Sprintf("%x", requestHash),
		Actor:         "system",
		ConfigVersion: weights.Version,
		CreatedAt:     now,
	}

	var candidates []scoring.Candidate
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range work {
		i := i
		w := &work[i]
		if w.dropped {
			mu.Lock()
			audit.Candidates = append(audit.Candidates, domain.AuditCandidate{ContractorID: w.contractor.ID, Included: false, DropReason: w.reason})
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			cand, drop, reason := c.scoreCandidate(gctx, job, w.contractor, w.estimate, weights, now)
			mu.Lock()
			defer mu.Unlock()
			if drop {
				audit.Candidates = append(audit.Candidates, domain.AuditCandidate{ContractorID: w.contractor.ID, Included: false, DropReason: reason})
				return nil
			}
			candidates = append(candidates, cand)
			audit.Candidates = append(audit.Candidates, domain.AuditCandidate{
				ContractorID: cand.ContractorID, Included: true,
				Score: int(cand.Breakdown.Final), Breakdown: cand.Breakdown,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.V(1).Info("recommendation pipeline degraded", "error", err)
		degraded = true
	}
	if ctx.Err() != nil {
		degraded = true
	}

	ranked := scoring.Rank(candidates)
	if len(ranked) > req.MaxResults {
		ranked = ranked[:req.MaxResults]
	}

	out := make([]domain.RankedCandidate, 0, len(ranked))
	for idx, r := range ranked {
		tieBreaker := ""
		if idx > 0 && ranked[idx-1].Breakdown.Final == r.Breakdown.Final {
			tieBreaker = "rating/ETA/start-time/id"
		}
		rationale := scoring.Rationale(r.Breakdown, r.ETAMin, r.Rating, tieBreaker)
		for ci := range audit.Candidates {
			if audit.Candidates[ci].ContractorID == r.ContractorID {
				audit.Candidates[ci].Rationale = rationale
			}
		}
		out = append(out, domain.RankedCandidate{
			ContractorID:   r.ContractorID,
			ContractorName: r.ContractorName,
			Score:          int(r.Breakdown.Final),
			Breakdown:      r.Breakdown,
			Rationale:      rationale,
			SuggestedSlots: r.Slots,
			DistanceM:      r.DistanceM,
			ETAMin:         r.ETAMin,
			Degraded:       r.DegradedSource,
		})
	}

	audit.Degraded = degraded
	if err := c.Audits.Create(ctx, audit); err == nil {
		_ = c.Weights.MarkReferenced(ctx, weights.Version)
	} else {
		degraded = true
	}

	region := c.Region(job)
	_ = c.Sink.Publish(ctx, domain.Event{
		Type:     domain.EventRecommendationReady,
		Payload:  map[string]any{"requestId": requestID, "jobId": job.ID, "configVersion": weights.Version},
		Channels: []string{events.RegionChannel(region)},
	})

	return Result{
		RequestID:     requestID,
		JobID:         job.ID,
		Ranked:        out,
		ConfigVersion: weights.Version,
		GeneratedAt:   now,
		Degraded:      degraded,
	}, nil
}

// refineTopK calls RefinedMatrix for the K cheapest non-dropped
// candidates, writing the routed estimate back into work in place
// (spec §4.7 step 4).
func refineTopK(ctx context.Context, svc *distance.Service, origin domain.LatLon, work []candidateWork, k int, now time.Time) {
	if k <= 0 {
		k = 8
	}
	idx := make([]int, 0, len(work))
	for i, w := range work {
		if !w.dropped {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return work[idx[a]].estimate.DistanceM < work[idx[b]].estimate.DistanceM })
	if len(idx) > k {
		idx = idx[:k]
	}
	if len(idx) == 0 {
		return
	}
	dests := make([]domain.LatLon, len(idx))
	for j, i := range idx {
		dests[j] = work[i].contractor.Base.LatLon
	}
	refined := svc.RefinedMatrix(ctx, origin, dests, now)
	for j, i := range idx {
		work[i].estimate = refined[j]
	}
}

// scoreCandidate runs C3->C4->C5->C6 for one contractor and scores it
// with C7. A non-empty drop reason means the candidate never reaches
// the ranked list but is still recorded on the audit.
func (c *Coordinator) scoreCandidate(ctx context.Context, job domain.Job, ct domain.Contractor, est distance.Estimate, weights domain.WeightsConfig, now time.Time) (scoring.Candidate, bool, domain.CandidateDropReason) {
	settings := config.FromContext(ctx)
	sw := job.ServiceWindow
	duration := time.Duration(job.DurationMin) * time.Minute

	existing, err := c.Assignments.ListForContractorOverlapping(ctx, ct.ID, domain.Window{
		Start: sw.Start.Add(-24 * time.Hour), End: sw.End.Add(24 * time.Hour),
	})
	if err != nil {
		existing = nil
	}

	bufferFn := c.bufferFunc(ctx, job, existing, settings)
	windows, err := availability.Compute(ct, sw, duration, existing, bufferFn)
	hasFeasible := err == nil && len(windows) > 0
	if err != nil {
		return scoring.Candidate{}, true, domain.DropNoFeasibility
	}

	var earliestStart time.Time
	var genSlots []domain.SuggestedSlot
	if hasFeasible {
		earliestStart = windows[0].Start
		fatigueFn := func(s, e time.Time) error { return fatigue.Check(ct, s, e, existing) }
		etaFn := func(s, e time.Time) (float64, float64) {
			return est.ETAMin, c.leavingETA(ctx, job, e, existing)
		}
		zone, zoneErr := time.LoadLocation(ct.Base.Zone)
		confFn := func(s, e time.Time) slots.ConfidenceFactors {
			return slots.ConfidenceFactors{
				BufferSlackMin:    slackMinutes(windows, s, e),
				RoutedSource:      est.Source == domain.SourceRouted,
				NearDSTTransition: zoneErr == nil && nearDSTTransition(zone, s),
			}
		}
		genSlots = slots.Generate(windows, duration, fatigueFn, etaFn, confFn)
	} else {
		return scoring.Candidate{}, true, domain.DropNoFeasibility
	}

	since := now.Add(-time.Duration(weights.RotationWindowDays) * 24 * time.Hour)
	history, _ := c.Assignments.ListForContractorSince(ctx, ct.ID, since)
	rotationCount := 0
	for _, a := range history {
		if a.Active() {
			rotationCount++
		}
	}

	breakdown := scoring.Score(scoring.Input{
		Contractor:         ct,
		ServiceWindow:      sw,
		Now:                now,
		EarliestStart:      earliestStart,
		HasFeasibleWindow:  hasFeasible,
		DistanceM:          est.DistanceM,
		ETAMin:             est.ETAMin,
		AssignmentsLast14d: rotationCount,
		Weights:            weights,
	})

	cand := scoring.Candidate{
		ContractorID:   ct.ID,
		ContractorName: ct.Name,
		Rating:         ct.Rating,
		DistanceM:      est.DistanceM,
		ETAMin:         est.ETAMin,
		EarliestStart:  earliestStart,
		HasSlots:       len(genSlots) > 0,
		Breakdown:      breakdown,
		Slots:          genSlots,
		DegradedSource: est.Source == domain.SourceHaversine,
	}
	return cand, false, ""
}

// leavingETA is the travel time from job's location to whichever active
// assignment starts soonest after end, or zero if the contractor has no
// assignment booked after this slot (spec §4.5: "leaving being ETA to
// the next assignment after s+d, or zero if none").
func (c *Coordinator) leavingETA(ctx context.Context, job domain.Job, end time.Time, existing []domain.Assignment) float64 {
	var next *domain.Assignment
	for i := range existing {
		a := existing[i]
		if !a.Active() || !a.Start.After(end) {
			continue
		}
		if next == nil || a.Start.Before(next.Start) {
			next = &existing[i]
		}
	}
	if next == nil {
		return 0
	}
	nextJob, err := c.Jobs.Get(ctx, next.JobID)
	if err != nil {
		return 0
	}
	return c.Distance.CheapMatrix(job.Location.LatLon, []domain.LatLon{nextJob.Location.LatLon})[0].ETAMin
}

// slackMinutes is the minutes of room between [s, e] and the edges of
// whichever feasibility window contains it, the nearest-neighbor buffer
// slack that feeds the highest-confidence formula (spec §4.5).
func slackMinutes(windows []availability.Window, s, e time.Time) float64 {
	best := math.Inf(1)
	for _, w := range windows {
		if s.Before(w.Start) || e.After(w.End) {
			continue
		}
		slack := s.Sub(w.Start).Minutes()
		if after := w.End.Sub(e).Minutes(); after < slack {
			slack = after
		}
		if slack < best {
			best = slack
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// nearDSTTransition reports whether loc's UTC offset at t differs from
// its offset 24h earlier or later, i.e. a DST transition falls within a
// day of the candidate start (spec §4.5 confidence penalty).
func nearDSTTransition(loc *time.Location, t time.Time) bool {
	_, offset := t.In(loc).Zone()
	for _, probe := range []time.Duration{-24 * time.Hour, 24 * time.Hour} {
		if _, o := t.Add(probe).In(loc).Zone(); o != offset {
			return true
		}
	}
	return false
}

// bufferFunc returns the C4 buffer callback: the ETA from the job
// behind an existing assignment to this job's location, floored at the
// configured minimum and padded by a fixed amount (spec §4.3 step 3).
func (c *Coordinator) bufferFunc(ctx context.Context, job domain.Job, existing []domain.Assignment, settings config.Settings) availability.BufferFunc {
	minBuffer := time.Duration(settings.BufferMinMinutes) * time.Minute
	padding := time.Duration(settings.BufferPaddingMinutes) * time.Minute
	return func(a domain.Assignment) time.Duration {
		otherJob, err := c.Jobs.Get(ctx, a.JobID)
		if err != nil {
			return minBuffer
		}
		est := c.Distance.CheapMatrix(otherJob.Location.LatLon, []domain.LatLon{job.Location.LatLon})[0]
		candidate := time.Duration(est.ETAMin)*time.Minute + padding
		if candidate < minBuffer {
			return minBuffer
		}
		return candidate
	}
}
