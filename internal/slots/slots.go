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

// Package slots implements the slot generator (C6): up to three concrete
// suggested slots per contractor — earliest, lowest-travel, and
// highest-confidence — each filtered through the fatigue/limits checker
// (spec §4.5).
package slots

import (
	"time"

	"github.com/smartscheduler/core/internal/availability"
	"github.com/smartscheduler/core/internal/domain"
)

const quantum = 15 * time.Minute

// ETAFunc returns the combined entering/leaving travel time (minutes) for
// a candidate slot starting at start and ending at end. Computing it
// requires a distance lookup, which is I/O, so the caller supplies it.
type ETAFunc func(start, end time.Time) (enterMin, leaveMin float64)

// ConfidenceFactors are the inputs to the highest-confidence score that
// only the caller (with access to neighbor assignments and the distance
// service) can compute.
type ConfidenceFactors struct {
	// BufferSlackMin is the minutes of slack between the candidate and the
	// nearer edge of its containing feasible window. It is not capped;
	// computeConfidence caps the bonus it earns at +30.
	BufferSlackMin float64
	// RoutedSource is true when the ETA for this candidate came from the
	// routed provider rather than the Haversine fallback.
	RoutedSource bool
	// NearDSTTransition is true when the candidate falls within 24h of a
	// DST transition in the contractor's zone.
	NearDSTTransition bool
}

// ConfidenceFunc computes the ConfidenceFactors for a candidate slot.
type ConfidenceFunc func(start, end time.Time) ConfidenceFactors

// FatigueFunc reports whether a candidate slot is rejected by the
// fatigue/per-day-limits checker (C5); nil means accepted.
type FatigueFunc func(start, end time.Time) error

// Generate picks up to three slots from the feasible windows. Any label
// that cannot be filled (fatigue-rejected or no candidate starts) is
// omitted (spec §4.5: "the response may therefore contain 0-3 slots").
func Generate(windows []availability.Window, duration time.Duration, fatigue FatigueFunc, eta ETAFunc, confidence ConfidenceFunc) []domain.SuggestedSlot {
	starts := enumerateStarts(windows, duration)
	accepted := make([]time.Time, 0, len(starts))
	for _, s := range starts {
		if fatigue(s, s.Add(duration)) == nil {
			accepted = append(accepted, s)
		}
	}
	if len(accepted) == 0 {
		return nil
	}

	var out []domain.SuggestedSlot

	if s := accepted[0]; true {
		out = append(out, domain.SuggestedSlot{
			Start: s, End: s.Add(duration), Type: domain.SlotEarliest,
			Confidence: clampConfidence(computeConfidence(confidence(s, s.Add(duration)))),
		})
	}

	if s, ok := lowestTravel(accepted, duration, eta); ok {
		out = appendIfNew(out, domain.SuggestedSlot{
			Start: s, End: s.Add(duration), Type: domain.SlotLowestTravel,
			Confidence: clampConfidence(computeConfidence(confidence(s, s.Add(duration)))),
		})
	}

	if s, ok := highestConfidence(accepted, duration, confidence); ok {
		out = appendIfNew(out, domain.SuggestedSlot{
			Start: s, End: s.Add(duration), Type: domain.SlotHighestConfidence,
			Confidence: clampConfidence(computeConfidence(confidence(s, s.Add(duration)))),
		})
	}

	return out
}

// enumerateStarts lists every quarter-hour-aligned candidate start inside
// windows that leaves room for the full duration.
func enumerateStarts(windows []availability.Window, duration time.Duration) []time.Time {
	var out []time.Time
	for _, w := range windows {
		for s := w.Start; !s.Add(duration).After(w.End); s = s.Add(quantum) {
			out = append(out, s)
		}
	}
	return out
}

// lowestTravel picks the accepted start minimizing combined enter+leave
// ETA, breaking ties by earliest start (spec §4.5).
func lowestTravel(starts []time.Time, duration time.Duration, eta ETAFunc) (time.Time, bool) {
	if len(starts) == 0 {
		return time.Time{}, false
	}
	best := starts[0]
	bestCost := sumETA(eta(best, best.Add(duration)))
	for _, s := range starts[1:] {
		cost := sumETA(eta(s, s.Add(duration)))
		if cost < bestCost || (cost == bestCost && s.Before(best)) {
			best = s
			bestCost = cost
		}
	}
	return best, true
}

func sumETA(enter, leave float64) float64 { return enter + leave }

// highestConfidence picks the accepted start maximizing the confidence
// formula (spec §4.5), ties broken by earliest start.
func highestConfidence(starts []time.Time, duration time.Duration, confidence ConfidenceFunc) (time.Time, bool) {
	if len(starts) == 0 {
		return time.Time{}, false
	}
	best := starts[0]
	bestScore := computeConfidence(confidence(best, best.Add(duration)))
	for _, s := range starts[1:] {
		score := computeConfidence(confidence(s, s.Add(duration)))
		if score > bestScore || (score == bestScore && s.Before(best)) {
			best = s
			bestScore = score
		}
	}
	return best, true
}

// computeConfidence implements the formula of spec §4.5: base 50, up to
// +30 for buffer slack, +20 for routed (non-cheap) ETA, -20 for DST
// transition overlap risk.
func computeConfidence(f ConfidenceFactors) int {
	score := 50.0
	slackBonus := f.BufferSlackMin / 2 // 60 minutes of slack -> +30
	if slackBonus > 30 {
		slackBonus = 30
	}
	score += slackBonus
	if f.RoutedSource {
		score += 20
	}
	if f.NearDSTTransition {
		score -= 20
	}
	return int(score)
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// appendIfNew appends s unless a slot with the same Type is already present.
func appendIfNew(out []domain.SuggestedSlot, s domain.SuggestedSlot) []domain.SuggestedSlot {
	for _, existing := range out {
		if existing.Type == s.Type {
			return out
		}
	}
	return append(out, s)
}
