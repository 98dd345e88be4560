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

// Package hours implements the working-hours resolver (C3): weekly hours
// plus calendar exceptions, turned into zone-aware UTC open/close
// intervals (spec §4.2).
package hours

import (
	"fmt"
	"time"

	"github.com/smartscheduler/core/internal/domain"
)

// Interval is a resolved, zone-converted open/close window expressed as UTC instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Resolve returns the ordered list of open/close UTC intervals for the
// contractor for every UTC calendar date from from through to; each
// date's working hours are read as local times in the contractor's home
// zone (or an override's zone). Rule
// precedence follows spec §4.2: holiday > override > weekly shape,
// then break subtraction, then zone conversion.
func Resolve(c domain.Contractor, from, to time.Time) ([]Interval, error) {
	homeLoc, err := time.LoadLocation(c.Base.Zone)
	if err != nil {
		return nil, fmt.Errorf("loading contractor zone %q: %w", c.Base.Zone, err)
	}

	exceptions := map[domain.Date]domain.CalendarException{}
	for _, ex := range c.Calendar {
		exceptions[ex.Date] = ex
	}

	var out []Interval
	start := from.UTC()
	end := to.UTC()

	for d := civilDate(start); !dateAfter(d, civilDate(end)); d = d.addDays(1) {
		ivs, zoneName := resolveDay(c, d, exceptions)
		if len(ivs) == 0 {
			continue
		}
		loc := homeLoc
		if zoneName != "" && zoneName != c.Base.Zone {
			l, err := time.LoadLocation(zoneName)
			if err != nil {
				return nil, fmt.Errorf("loading override zone %q: %w", zoneName, err)
			}
			loc = l
		}
		ivs = subtractBreak(ivs, c.BreakMinutes)
		for _, iv := range ivs {
			s := toUTC(d, iv.StartMin, loc)
			e := toUTC(d, iv.EndMin, loc)
			if !e.After(s) {
				continue // DST forward-shift collapsed this interval; skip silently
			}
			out = append(out, Interval{Start: s, End: e})
		}
	}
	return out, nil
}

// resolveDay applies the holiday > override > weekly precedence and
// returns the base (pre-break) intervals plus the zone they're in.
func resolveDay(c domain.Contractor, d civil, exceptions map[domain.Date]domain.CalendarException) ([]domain.DayInterval, string) {
	date := domain.Date{Year: d.year, Month: int(d.month), Day: d.day}
	if ex, ok := exceptions[date]; ok {
		switch ex.Type {
		case domain.ExceptionHoliday:
			return nil, ""
		case domain.ExceptionOverride:
			zone := ex.Zone
			if zone == "" {
				zone = c.Base.Zone
			}
			return ex.Intervals, zone
		}
	}
	weekday := time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Weekday()
	sched := c.Weekly.Days[int(weekday)]
	zone := sched.Zone
	if zone == "" {
		zone = c.Base.Zone
	}
	return sched.Intervals, zone
}

// subtractBreak carves the configured break out of the midpoint of each
// interval (spec §4.2 rule 4: "symmetric around the interval midpoint").
func subtractBreak(ivs []domain.DayInterval, breakMin int) []domain.DayInterval {
	if breakMin <= 0 {
		return ivs
	}
	out := make([]domain.DayInterval, 0, len(ivs)*2)
	half := breakMin / 2
	for _, iv := range ivs {
		if iv.Width() <= breakMin {
			continue // interval too short to hold a break; drops to empty
		}
		mid := (iv.StartMin + iv.EndMin) / 2
		breakStart := mid - half
		breakEnd := breakStart + breakMin
		out = append(out, domain.DayInterval{StartMin: iv.StartMin, EndMin: breakStart})
		out = append(out, domain.DayInterval{StartMin: breakEnd, EndMin: iv.EndMin})
	}
	return out
}

func toUTC(d civil, minutesSinceMidnight int, loc *time.Location) time.Time {
	h := minutesSinceMidnight / 60
	m := minutesSinceMidnight % 60
	return time.Date(d.year, d.month, d.day, h, m, 0, 0, loc).UTC()
}

// civil is a small calendar-date cursor independent of any wall-clock time,
// used to walk whole days without re-deriving a Location's offset each step.
type civil struct {
	year  int
	month time.Month
	day   int
}

func civilDate(t time.Time) civil {
	y, m, d := t.Date()
	return civil{year: y, month: m, day: d}
}

func (c civil) addDays(n int) civil {
	t := time.Date(c.year, c.month, c.day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return civilDate(t)
}

func dateAfter(a, b civil) bool {
	at := time.Date(a.year, a.month, a.day, 0, 0, 0, 0, time.UTC)
	bt := time.Date(b.year, b.month, b.day, 0, 0, 0, 0, time.UTC)
	return at.After(bt)
}
