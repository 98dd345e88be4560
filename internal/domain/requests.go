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

package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

var validate = validator.New()

// RecommendRequest is the validated input to the recommendation coordinator (C8).
type RecommendRequest struct {
	JobID      string `validate:"required"`
	MaxResults int    `validate:"omitempty,min=1,max=100"`
}

// Validate runs pure, I/O-free checks on the request (spec §9: validation
// is a small set of pure functions invoked before any I/O).
func (r RecommendRequest) Validate() error {
	return validate.Struct(r)
}

// WithDefaults returns a copy of r with MaxResults defaulted to 10 (spec §4.7).
func (r RecommendRequest) WithDefaults() RecommendRequest {
	if r.MaxResults == 0 {
		r.MaxResults = 10
	}
	return r
}

// AssignRequest is the validated input to the assignment transaction (C9).
type AssignRequest struct {
	JobID        string    `validate:"required"`
	ContractorID string    `validate:"required"`
	StartUtc     time.Time `validate:"required"`
	EndUtc       time.Time `validate:"required"`
	Actor        string    `validate:"required"`
}

// Validate checks structural validity and the start<end invariant. It does
// not check feasibility — that requires repository I/O and belongs to C9.
func (r AssignRequest) Validate() error {
	var errs error
	if err := validate.Struct(r); err != nil {
		errs = multierr.Append(errs, err)
	}
	if !r.EndUtc.After(r.StartUtc) {
		errs = multierr.Append(errs, ErrWindowInverted)
	}
	return errs
}

// ErrWindowInverted is returned when EndUtc does not strictly follow StartUtc.
var ErrWindowInverted = fieldError("endUtc must be after startUtc")

type fieldError string

func (e fieldError) Error() string { return string(e) }

// ValidateJob checks the Job invariants from spec §3: duration fits inside
// the service window and every required skill is in the catalogue.
func ValidateJob(j Job, catalogue map[string]struct{}) error {
	var errs error
	if j.DurationMin <= 0 {
		errs = multierr.Append(errs, fieldError("duration must be > 0"))
	}
	if !j.ServiceWindow.End.After(j.ServiceWindow.Start) {
		errs = multierr.Append(errs, fieldError("service window start must be before end"))
	} else if time.Duration(j.DurationMin)*time.Minute > j.ServiceWindow.Width() {
		errs = multierr.Append(errs, fieldError("duration exceeds service window width"))
	}
	for _, s := range j.RequiredSkills {
		if _, ok := catalogue[s]; !ok {
			errs = multierr.Append(errs, fieldError("required skill not in catalogue: "+s))
		}
	}
	return errs
}

// ValidateContractor checks the Contractor invariants from spec §3: weekly
// hour intervals don't overlap within a weekday, and every skill tag comes
// from the catalogue.
func ValidateContractor(c Contractor, catalogue map[string]struct{}) error {
	var errs error
	for _, day := range c.Weekly.Days {
		ivs := append([]DayInterval(nil), day.Intervals...)
		for i := 0; i < len(ivs); i++ {
			for j := i + 1; j < len(ivs); j++ {
				if ivs[i].StartMin < ivs[j].EndMin && ivs[j].StartMin < ivs[i].EndMin {
					errs = multierr.Append(errs, fieldError("overlapping weekly-hour intervals"))
				}
			}
		}
	}
	for s := range c.Skills {
		if _, ok := catalogue[s]; !ok {
			errs = multierr.Append(errs, fieldError("skill not in catalogue: "+s))
		}
	}
	return errs
}
