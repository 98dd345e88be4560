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

// Package availability implements the availability engine (C4): working
// hours minus existing assignments (expanded by travel buffer) minus
// anything narrower than the job's duration, intersected with the job's
// service window (spec §4.3).
package availability

import (
	"sort"
	"time"

	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/hours"
)

// Window is a feasible, quantized, duration-wide-or-greater interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Width() time.Duration { return w.End.Sub(w.Start) }

// BufferFunc computes the travel buffer to reserve around an existing
// assignment (spec §4.3 step 3: B = max(min_buffer, eta_min+fixed_padding)).
// Computing it requires an ETA lookup, which is I/O — callers (the
// coordinator/transaction) own that and pass the result in as a pure function.
type BufferFunc func(a domain.Assignment) time.Duration

const quantum = 15 * time.Minute

// Compute returns the feasible windows for contractor within sw for a job
// of the given duration, given the contractor's existing non-cancelled
// assignments that overlap sw.
func Compute(c domain.Contractor, sw domain.Window, duration time.Duration, assignments []domain.Assignment, buffer BufferFunc) ([]Window, error) {
	open, err := hours.Resolve(c, sw.Start.Add(-24*time.Hour), sw.End.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	free := make([]Window, 0, len(open))
	for _, iv := range open {
		cs, ce := clip(iv.Start, iv.End, sw.Start, sw.End)
		if ce.After(cs) {
			free = append(free, Window{Start: cs, End: ce})
		}
	}

	occupied := make([]Window, 0, len(assignments))
	for _, a := range assignments {
		if !a.Active() {
			continue
		}
		if !overlaps(a.Start, a.End, sw.Start, sw.End) {
			continue
		}
		b := buffer(a)
		occupied = append(occupied, Window{Start: a.Start.Add(-b), End: a.End.Add(b)})
	}
	sort.Slice(occupied, func(i, j int) bool { return occupied[i].Start.Before(occupied[j].Start) })

	free = subtractAll(free, occupied)
	free = quantizeAndFilter(free, duration)
	return free, nil
}

func clip(s, e, loS, loE time.Time) (time.Time, time.Time) {
	if s.Before(loS) {
		s = loS
	}
	if e.After(loE) {
		e = loE
	}
	return s, e
}

func overlaps(aS, aE, bS, bE time.Time) bool {
	return aS.Before(bE) && bS.Before(aE)
}

// subtractAll removes every occupied window from every free window,
// returning the remaining non-overlapping fragments in start order.
func subtractAll(free, occupied []Window) []Window {
	for _, occ := range occupied {
		var next []Window
		for _, w := range free {
			next = append(next, subtractOne(w, occ)...)
		}
		free = next
	}
	sort.Slice(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })
	return free
}

func subtractOne(w, occ Window) []Window {
	if !overlaps(w.Start, w.End, occ.Start, occ.End) {
		return []Window{w}
	}
	var out []Window
	if occ.Start.After(w.Start) {
		out = append(out, Window{Start: w.Start, End: minTime(occ.Start, w.End)})
	}
	if occ.End.Before(w.End) {
		out = append(out, Window{Start: maxTime(occ.End, w.Start), End: w.End})
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// quantizeAndFilter rounds starts up and ends down to the nearest quarter
// hour, dropping anything that becomes narrower than duration (spec §4.3
// quantization rule).
func quantizeAndFilter(windows []Window, duration time.Duration) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		s := roundUp(w.Start, quantum)
		e := roundDown(w.End, quantum)
		if e.Sub(s) >= duration {
			out = append(out, Window{Start: s, End: e})
		}
	}
	return out
}

func roundUp(t time.Time, q time.Duration) time.Time {
	r := t.Truncate(q)
	if r.Before(t) {
		r = r.Add(q)
	}
	return r
}

func roundDown(t time.Time, q time.Duration) time.Time {
	return t.Truncate(q)
}
