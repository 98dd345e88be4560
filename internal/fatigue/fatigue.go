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

// Package fatigue implements the fatigue & per-day limits checker (C5):
// daily-hour and per-day job-count caps, accounted against the
// contractor's local calendar date, splitting jobs that span midnight
// (spec §4.4).
package fatigue

import (
	"fmt"
	"time"

	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/errs"
)

// Check rejects a candidate interval if it would push the contractor over
// the daily-hour cap or the daily-job-count cap on any local date it touches.
func Check(c domain.Contractor, candidateStart, candidateEnd time.Time, existing []domain.Assignment) error {
	loc, err := time.LoadLocation(c.Base.Zone)
	if err != nil {
		return errs.Wrap(errs.Fatal, fmt.Errorf("loading contractor zone: %w", err))
	}

	candidateByDate := minutesPerLocalDate(candidateStart, candidateEnd, loc)

	existingMinutes := map[domain.Date]int{}
	existingCounts := map[domain.Date]int{}
	for _, a := range existing {
		if !a.Active() {
			continue
		}
		perDate := minutesPerLocalDate(a.Start, a.End, loc)
		touched := map[domain.Date]struct{}{}
		for d, mins := range perDate {
			existingMinutes[d] += mins
			touched[d] = struct{}{}
		}
		for d := range touched {
			existingCounts[d]++
		}
	}

	for d, candidateMins := range candidateByDate {
		total := existingMinutes[d] + candidateMins
		if total > c.DailyHourCap {
			return errs.New(errs.Conflict, fmt.Sprintf("daily hour cap exceeded on %04d-%02d-%02d: %d > %d minutes", d.Year, d.Month, d.Day, total, c.DailyHourCap))
		}
		if existingCounts[d] >= c.DailyJobCap {
			return errs.New(errs.Conflict, fmt.Sprintf("daily job cap reached on %04d-%02d-%02d: %d assignments", d.Year, d.Month, d.Day, existingCounts[d]))
		}
	}
	return nil
}

// minutesPerLocalDate splits [start,end) across local-midnight boundaries
// in loc and returns the minutes contributed to each local calendar date.
func minutesPerLocalDate(start, end time.Time, loc *time.Location) map[domain.Date]int {
	out := map[domain.Date]int{}
	cur := start.In(loc)
	endLocal := end.In(loc)
	for cur.Before(endLocal) {
		y, m, d := cur.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
		nextMidnight := midnight.AddDate(0, 0, 1)
		segEnd := endLocal
		if nextMidnight.Before(segEnd) {
			segEnd = nextMidnight
		}
		out[domain.Date{Year: y, Month: int(m), Day: d}] += int(segEnd.Sub(cur).Minutes())
		cur = segEnd
	}
	return out
}
