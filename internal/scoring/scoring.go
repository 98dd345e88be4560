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

// Package scoring implements the weighted, versioned, deterministic
// scorer and ranking (C7): four factor scores, a weighted final score,
// ordered tie-breakers, and a bounded deterministic rationale (spec §4.6).
package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smartscheduler/core/internal/domain"
)

// Input is everything the scorer needs for one candidate; every field is
// a plain value so scoring stays a pure function of its inputs (spec §8:
// "final_score is a deterministic function of (job, contractor snapshot,
// active weights version, cache state)").
type Input struct {
	Contractor          domain.Contractor
	ServiceWindow       domain.Window
	Now                 time.Time
	EarliestStart       time.Time // zero if no feasible window
	HasFeasibleWindow   bool
	DistanceM           float64
	ETAMin              float64
	AssignmentsLast14d  int
	Weights             domain.WeightsConfig
}

// Score computes the four factor scores and the weighted final score.
func Score(in Input) domain.ScoreBreakdown {
	horizon := in.ServiceWindow.Width().Minutes()
	if horizon < float64(in.Weights.HorizonFloorMin) {
		horizon = float64(in.Weights.HorizonFloorMin)
	}

	var availabilityScore float64
	if in.HasFeasibleWindow {
		minutesUntil := in.EarliestStart.Sub(in.Now).Minutes()
		if minutesUntil < 0 {
			minutesUntil = 0
		}
		pct := clamp(minutesUntil/horizon*100, 0, 100)
		availabilityScore = 100 - pct
	}

	ratingScore := clamp(in.Contractor.Rating, 0, 100)

	dMax := in.Weights.DistanceCapM
	if dMax <= 0 {
		dMax = 80_000
	}
	distanceScore := 100 * math.Max(0, 1-in.DistanceM/dMax)

	rotationCap := float64(in.Weights.RotationCap)
	if rotationCap <= 0 {
		rotationCap = 20
	}
	rotationScore := clamp(100*(1-float64(in.AssignmentsLast14d)/rotationCap), 0, 100)

	sum := in.Weights.WeightSum()
	var final float64
	if sum > 0 {
		final = (in.Weights.WeightAvailability*availabilityScore +
			in.Weights.WeightRating*ratingScore +
			in.Weights.WeightDistance*distanceScore +
			in.Weights.WeightRotation*rotationScore) / sum
	}

	return domain.ScoreBreakdown{
		Availability: availabilityScore,
		Rating:       ratingScore,
		Distance:     distanceScore,
		Rotation:     rotationScore,
		Final:        math.Round(final),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Candidate is one scored contractor ready for ranking.
type Candidate struct {
	ContractorID   string
	ContractorName string
	Rating         float64
	DistanceM      float64
	ETAMin         float64
	EarliestStart  time.Time
	HasSlots       bool
	Breakdown      domain.ScoreBreakdown
	Slots          []domain.SuggestedSlot
	// DegradedSource is true when DistanceM/ETAMin came from the cheap
	// Haversine fallback rather than a routed provider call.
	DegradedSource bool
}

// Rank sorts candidates by final score descending, applying the ordered
// tie-breakers of spec §4.6: higher rating, then shorter ETA, then
// smaller earliest-start timestamp, then lexical id.
func Rank(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Breakdown.Final != b.Breakdown.Final {
			return a.Breakdown.Final > b.Breakdown.Final
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.ETAMin != b.ETAMin {
			return a.ETAMin < b.ETAMin
		}
		if !a.EarliestStart.Equal(b.EarliestStart) {
			return a.EarliestStart.Before(b.EarliestStart)
		}
		return a.ContractorID < b.ContractorID
	})
	return out
}

// Rationale builds a deterministic, ≤200-character explanation naming
// the two factors with the highest unweighted factor scores (the
// configured weights do not affect which are named) and the tie-breaker rule applied,
// if any was needed to separate this candidate from its predecessor.
func Rationale(b domain.ScoreBreakdown, etaMin float64, rating float64, tieBreaker string) string {
	factors := topTwoFactors(b)
	r := fmt.Sprintf("%s; %s (%.0f min); rating %.0f.", factors[0], factors[1], etaMin, rating)
	if tieBreaker != "" {
		r = fmt.Sprintf("%s Tie-break: %s.", r, tieBreaker)
	}
	if len(r) > 200 {
		r = r[:197] + "..."
	}
	return r
}

func topTwoFactors(b domain.ScoreBreakdown) [2]string {
	type fv struct {
		name  string
		value float64
		label string
	}
	factors := []fv{
		{"availability", b.Availability, "High availability"},
		{"rating", b.Rating, "Strong rating"},
		{"distance", b.Distance, "Short travel"},
		{"rotation", b.Rotation, "Fair rotation"},
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].value > factors[j].value })
	return [2]string{factors[0].label, factors[1].label}
}
