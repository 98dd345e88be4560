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

package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartscheduler/core/internal/domain"
)

func fullDayContractor() domain.Contractor {
	c := *domain.NewContractor("c1", "Ann", domain.Location{Zone: "UTC"})
	c.BreakMinutes = 0
	for i := range c.Weekly.Days {
		c.Weekly.Days[i] = domain.DaySchedule{
			Intervals: []domain.DayInterval{{StartMin: 9 * 60, EndMin: 17 * 60}},
			Zone:      "UTC",
		}
	}
	return c
}

func noBuffer(domain.Assignment) time.Duration { return 0 }

func TestComputeFullWindowWhenNoAssignments(t *testing.T) {
	c := fullDayContractor()
	sw := domain.Window{
		Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
	}
	windows, err := Compute(c, sw, 2*time.Hour, nil, noBuffer)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.True(t, windows[0].Start.Equal(sw.Start))
	assert.True(t, windows[0].End.Equal(sw.End))
}

func TestComputeSubtractsExistingAssignmentWithBuffer(t *testing.T) {
	c := fullDayContractor()
	sw := domain.Window{
		Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
	}
	existing := []domain.Assignment{
		{
			Start:  time.Date(2025, 11, 12, 12, 0, 0, 0, time.UTC),
			End:    time.Date(2025, 11, 12, 13, 0, 0, 0, time.UTC),
			Status: domain.AssignmentConfirmed,
		},
	}
	buffer := func(domain.Assignment) time.Duration { return 15 * time.Minute }
	windows, err := Compute(c, sw, 1*time.Hour, existing, buffer)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.True(t, windows[0].End.Equal(time.Date(2025, 11, 12, 11, 45, 0, 0, time.UTC)))
	assert.True(t, windows[1].Start.Equal(time.Date(2025, 11, 12, 13, 15, 0, 0, time.UTC)))
}

func TestComputeDropsCancelledAssignments(t *testing.T) {
	c := fullDayContractor()
	sw := domain.Window{
		Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
	}
	existing := []domain.Assignment{
		{
			Start:  time.Date(2025, 11, 12, 12, 0, 0, 0, time.UTC),
			End:    time.Date(2025, 11, 12, 13, 0, 0, 0, time.UTC),
			Status: domain.AssignmentCancelled,
		},
	}
	windows, err := Compute(c, sw, 1*time.Hour, existing, noBuffer)
	require.NoError(t, err)
	require.Len(t, windows, 1)
}

func TestComputeDropsNarrowRemainders(t *testing.T) {
	c := fullDayContractor()
	sw := domain.Window{
		Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 12, 10, 0, 0, 0, time.UTC),
	}
	existing := []domain.Assignment{
		{
			Start:  time.Date(2025, 11, 12, 9, 30, 0, 0, time.UTC),
			End:    time.Date(2025, 11, 12, 9, 45, 0, 0, time.UTC),
			Status: domain.AssignmentConfirmed,
		},
	}
	// Remaining fragments are 30min and 15min; neither holds a 1h job.
	windows, err := Compute(c, sw, 1*time.Hour, existing, noBuffer)
	require.NoError(t, err)
	assert.Empty(t, windows)
}
