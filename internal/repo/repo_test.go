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

package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/repo"
)

func newTestStore() *repo.MemoryStore {
	return repo.NewMemoryStore([]string{"hvac", "electrical"}, domain.WeightsConfig{
		Version:            1,
		WeightAvailability: 0.3,
		WeightRating:       0.3,
		WeightDistance:     0.3,
		WeightRotation:     0.1,
	})
}

func TestContractorGetNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Contractors.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestContractorPutThenGet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c := *domain.NewContractor("c1", "Alicia Torres", domain.Location{Zone: "America/New_York"})
	c.Skills["hvac"] = struct{}{}
	require.NoError(t, s.Contractors.Put(ctx, c))

	got, err := s.Contractors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia Torres", got.Name)
}

func TestListBySkillsFiltersToSuperset(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	a := *domain.NewContractor("a", "A", domain.Location{})
	a.Skills["hvac"] = struct{}{}
	b := *domain.NewContractor("b", "B", domain.Location{})
	b.Skills["hvac"] = struct{}{}
	b.Skills["electrical"] = struct{}{}
	require.NoError(t, s.Contractors.Put(ctx, a))
	require.NoError(t, s.Contractors.Put(ctx, b))

	out, err := s.Contractors.ListBySkills(ctx, []string{"hvac", "electrical"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestAssignmentOverlapOnlyCountsActive(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	base := time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC)

	active := domain.Assignment{ID: "a1", ContractorID: "c1", Start: base, End: base.Add(2 * time.Hour), Status: domain.AssignmentConfirmed}
	cancelled := domain.Assignment{ID: "a2", ContractorID: "c1", Start: base, End: base.Add(2 * time.Hour), Status: domain.AssignmentCancelled}
	require.NoError(t, s.Assignments.Create(ctx, active))
	require.NoError(t, s.Assignments.Create(ctx, cancelled))

	out, err := s.Assignments.ListForContractorOverlapping(ctx, "c1", domain.Window{Start: base, End: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a1", out[0].ID)
}

func TestWeightsImmutableOnceReferenced(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Weights.MarkReferenced(ctx, 1))

	err := s.Weights.Put(ctx, domain.WeightsConfig{Version: 1, WeightAvailability: 0.9})
	assert.Error(t, err)
}

func TestAuditLatestForJobReturnsMostRecent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Audits.Create(ctx, domain.AuditRecommendation{ID: "aud1", JobID: "j1"}))
	require.NoError(t, s.Audits.Create(ctx, domain.AuditRecommendation{ID: "aud2", JobID: "j1"}))

	latest, err := s.Audits.LatestForJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "aud2", latest.ID)

	require.NoError(t, s.Audits.MarkSelected(ctx, "aud2", "c1"))
	latest, err = s.Audits.LatestForJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "c1", latest.SelectedContractorID)
}

func TestListBySkillsScalesOverManyContractors(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		c := *domain.NewContractor(fmt.Sprintf("c%d", i), randomdata.SillyName(), domain.Location{})
		if i%3 == 0 {
			c.Skills["hvac"] = struct{}{}
		}
		require.NoError(t, s.Contractors.Put(ctx, c))
	}

	out, err := s.Contractors.ListBySkills(ctx, []string{"hvac"})
	require.NoError(t, err)
	assert.Len(t, out, 67) // ceil(200/3)
}

func TestSkillCatalogueAddIsVisibleInAll(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	s.SkillCatalogue.Add("plumbing")

	all, err := s.SkillCatalogue.All(ctx)
	require.NoError(t, err)
	_, ok := all["plumbing"]
	assert.True(t, ok)
}
