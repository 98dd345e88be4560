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

// Package clock provides the monotonic UTC clock and stable ID generation
// (C1) used across the engine. Injecting both behind interfaces keeps the
// scorer, coordinator, and assignment transaction deterministic in tests.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current instant. Production code uses Real; tests use
// a Fixed clock (and a Sequence IDProvider) so recommendation/booking behavior is
// reproducible (spec §8: "two identical inputs... produce identical
// rankings").
type Clock interface {
	Now() time.Time
}

// IDProvider generates stable, collision-free identifiers for jobs,
// contractors, assignments, audits, and events.
type IDProvider interface {
	NewID() string
}

// Real is the production Clock, always reporting UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// UUIDProvider is the production IDProvider, backed by google/uuid.
type UUIDProvider struct{}

func (UUIDProvider) NewID() string { return uuid.NewString() }

// Fixed is a test Clock that always returns the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }

// Sequence is a test IDProvider that returns ids in order, wrapping the
// sequence index into a predictable, readable id for assertions.
type Sequence struct {
	Prefix string
	n      int
}

func (s *Sequence) NewID() string {
	s.n++
	return s.Prefix + "-" + itoa(s.n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
