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

package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartscheduler/core/internal/domain"
)

func defaultWeights() domain.WeightsConfig {
	return domain.WeightsConfig{
		Version:             1,
		WeightAvailability:  0.3,
		WeightRating:        0.3,
		WeightDistance:      0.3,
		WeightRotation:      0.1,
		DistanceCapM:        80_000,
		HorizonFloorMin:     60,
		RotationCap:         20,
	}
}

func TestScoreDistanceCapsAtZero(t *testing.T) {
	sw := domain.Window{Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC)}
	in := Input{
		Contractor:        domain.Contractor{Rating: 80},
		ServiceWindow:     sw,
		Now:               sw.Start,
		EarliestStart:     sw.Start,
		HasFeasibleWindow: true,
		DistanceM:         200_000,
		Weights:           defaultWeights(),
	}
	b := Score(in)
	assert.Equal(t, 0.0, b.Distance)
}

func TestScoreDeterministic(t *testing.T) {
	sw := domain.Window{Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC)}
	in := Input{
		Contractor:        domain.Contractor{Rating: 90},
		ServiceWindow:     sw,
		Now:               sw.Start,
		EarliestStart:     sw.Start,
		HasFeasibleWindow: true,
		DistanceM:         10_000,
		Weights:           defaultWeights(),
	}
	b1 := Score(in)
	b2 := Score(in)
	assert.Equal(t, b1, b2)
}

func TestRankOrdersByFinalThenTieBreakers(t *testing.T) {
	early := time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC)
	late := time.Date(2025, 11, 12, 10, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{ContractorID: "b", Rating: 90, ETAMin: 10, EarliestStart: late, Breakdown: domain.ScoreBreakdown{Final: 80}},
		{ContractorID: "a", Rating: 90, ETAMin: 5, EarliestStart: early, Breakdown: domain.ScoreBreakdown{Final: 80}},
	}
	ranked := Rank(candidates)
	assert.Equal(t, "a", ranked[0].ContractorID, "shorter ETA must win the tie")
}

func TestRankLexicalFallback(t *testing.T) {
	now := time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{ContractorID: "zzz", Rating: 90, ETAMin: 5, EarliestStart: now, Breakdown: domain.ScoreBreakdown{Final: 80}},
		{ContractorID: "aaa", Rating: 90, ETAMin: 5, EarliestStart: now, Breakdown: domain.ScoreBreakdown{Final: 80}},
	}
	ranked := Rank(candidates)
	assert.Equal(t, "aaa", ranked[0].ContractorID)
}

func TestRationaleWithinLengthLimit(t *testing.T) {
	b := domain.ScoreBreakdown{Availability: 90, Rating: 92, Distance: 70, Rotation: 40}
	r := Rationale(b, 17, 92, "")
	assert.LessOrEqual(t, len(r), 200)
	assert.Contains(t, r, "availability")
}
