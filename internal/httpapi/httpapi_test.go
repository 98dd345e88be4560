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

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartscheduler/core/internal/assignment"
	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/config"
	"github.com/smartscheduler/core/internal/coordinator"
	"github.com/smartscheduler/core/internal/distance"
	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/errs"
	"github.com/smartscheduler/core/internal/events"
	"github.com/smartscheduler/core/internal/repo"
)

func weekdayContractor(id string) domain.Contractor {
	c := domain.NewContractor(id, "Contractor "+id, domain.Location{LatLon: domain.LatLon{Lat: 40.7, Lon: -73.9}, Zone: "America/New_York"})
	for d := 1; d <= 5; d++ {
		c.Weekly.Days[d] = domain.DaySchedule{
			Intervals: []domain.DayInterval{{StartMin: 8 * 60, EndMin: 18 * 60}},
			Zone:      "America/New_York",
		}
	}
	c.Skills["hvac"] = struct{}{}
	return *c
}

func newTestAPI(t *testing.T) (*API, *repo.MemoryStore) {
	t.Helper()
	store := repo.NewMemoryStore([]string{"hvac"}, domain.WeightsConfig{
		Version: 1, WeightAvailability: 0.3, WeightRating: 0.3, WeightDistance: 0.3, WeightRotation: 0.1,
		DistanceCapM: 80_000, HorizonFloorMin: 60, RotationCap: 20, RotationWindowDays: 14,
	})
	now := time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)
	svc := distance.NewService(distance.NewFakeProvider(), distance.DefaultOptions())
	sink := events.NewSink(events.NewMemoryLog(), clock.Fixed{At: now}, &clock.Sequence{Prefix: "evt"}, logr.Discard())

	coord := &coordinator.Coordinator{
		Contractors: store.Contractors, Jobs: store.Jobs, Assignments: store.Assignments,
		Audits: store.Audits, Weights: store.Weights, Distance: svc, Sink: sink,
		Clock: clock.Fixed{At: now}, IDs: &clock.Sequence{Prefix: "req"},
	}
	tx := assignment.NewTransaction(store.Contractors, store.Jobs, store.Assignments, store.Audits, svc, sink, clock.Fixed{At: now}, &clock.Sequence{Prefix: "asn"})

	api := &API{Coordinator: coord, Assignment: tx, Audits: store.Audits, Settings: config.Default()}
	return api, store
}

func TestPostRecommendationsReturnsRanked(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := config.ToContext(context.Background(), config.Default())

	c1 := weekdayContractor("c1")
	require.NoError(t, store.Contractors.Put(ctx, c1))
	job := domain.Job{
		ID: "j1", DurationMin: 120, RequiredSkills: []string{"hvac"},
		Location: domain.Location{LatLon: domain.LatLon{Lat: 40.71, Lon: -73.91}, Zone: "America/New_York"},
		ServiceWindow: domain.Window{
			Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, store.Jobs.Put(ctx, job))

	body, _ := json.Marshal(recommendationsRequest{JobID: "j1"})
	req := httptest.NewRequest(http.MethodPost, "/recommendations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.NewRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp recommendationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "c1", resp.Recommendations[0].ContractorID)
}

func TestPostJobAssignReturns409OnOverlap(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := config.ToContext(context.Background(), config.Default())

	c1 := weekdayContractor("c1")
	require.NoError(t, store.Contractors.Put(ctx, c1))
	job := domain.Job{
		ID: "j1", DurationMin: 120,
		Location: domain.Location{LatLon: domain.LatLon{Lat: 40.71, Lon: -73.91}, Zone: "America/New_York"},
		ServiceWindow: domain.Window{
			Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, store.Jobs.Put(ctx, job))

	start := time.Date(2025, 11, 12, 13, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	require.NoError(t, store.Assignments.Create(ctx, domain.Assignment{
		ID: "existing", JobID: "other", ContractorID: "c1", Start: start, End: end, Status: domain.AssignmentConfirmed,
	}))

	body, _ := json.Marshal(assignRequestDTO{ContractorID: "c1", StartUtc: start, EndUtc: end, Actor: "dispatcher-1"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/j1/assign", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.NewRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(errs.Conflict), resp.Code)
}

func TestGetRecommendationsLatestReadsAudit(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := config.ToContext(context.Background(), config.Default())
	require.NoError(t, store.Audits.Create(ctx, domain.AuditRecommendation{ID: "aud1", JobID: "j1"}))

	req := httptest.NewRequest(http.MethodGet, "/recommendations/latest?jobId=j1", nil)
	rec := httptest.NewRecorder()
	api.NewRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostRecommendationsRecalculateReturns202(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := config.ToContext(context.Background(), config.Default())
	job := domain.Job{ID: "j1", DurationMin: 60, ServiceWindow: domain.Window{
		Start: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 12, 17, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, store.Jobs.Put(ctx, job))

	body, _ := json.Marshal(recommendationsRequest{JobID: "j1"})
	req := httptest.NewRequest(http.MethodPost, "/recommendations/recalculate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.NewRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
