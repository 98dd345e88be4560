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

// Package repo defines typed repository interfaces (C11) for contractors,
// jobs, assignments, audits, the weights config, and the skill catalogue — explicit
// identifier-based lookups, no lazy proxies, no service locator (spec §9).
package repo

import (
	"context"
	"time"

	"github.com/smartscheduler/core/internal/domain"
)

// Contractors is the typed access surface for contractor records.
type Contractors interface {
	Get(ctx context.Context, id string) (domain.Contractor, error)
	ListBySkills(ctx context.Context, skills []string) ([]domain.Contractor, error)
	Put(ctx context.Context, c domain.Contractor) error
}

// Jobs is the typed access surface for job records.
type Jobs interface {
	Get(ctx context.Context, id string) (domain.Job, error)
	Put(ctx context.Context, j domain.Job) error
}

// Assignments is the typed access surface for assignment rows. Writes
// happen only through the assignment transaction (C9).
type Assignments interface {
	Get(ctx context.Context, id string) (domain.Assignment, error)
	ListForContractorOverlapping(ctx context.Context, contractorID string, window domain.Window) ([]domain.Assignment, error)
	ListForContractorSince(ctx context.Context, contractorID string, since time.Time) ([]domain.Assignment, error)
	ListForJob(ctx context.Context, jobID string) ([]domain.Assignment, error)
	Create(ctx context.Context, a domain.Assignment) error
	Update(ctx context.Context, a domain.Assignment) error
}

// Audits is the append-only audit-recommendation store.
type Audits interface {
	Create(ctx context.Context, a domain.AuditRecommendation) error
	LatestForJob(ctx context.Context, jobID string) (domain.AuditRecommendation, error)
	MarkSelected(ctx context.Context, auditID, contractorID string) error
}

// Weights is access to the versioned scoring configuration.
type Weights interface {
	Active(ctx context.Context) (domain.WeightsConfig, error)
	Get(ctx context.Context, version int) (domain.WeightsConfig, error)
	// MarkReferenced freezes a version the first time an audit cites it
	// (spec §3: "once a version is referenced by any audit record, it is
	// immutable").
	MarkReferenced(ctx context.Context, version int) error
}

// SkillCatalogue is the system-wide set of valid skill tags.
type SkillCatalogue interface {
	All(ctx context.Context) (map[string]struct{}, error)
}

// ErrNotFound is returned by Get-style lookups that find nothing.
var ErrNotFound = notFoundError("not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }
