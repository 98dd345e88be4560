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

package distance

import (
	"context"
	"errors"
	"time"

	"github.com/smartscheduler/core/internal/domain"
)

// FakeProvider is a deterministic in-memory routing provider for tests.
// By default it returns a fixed multiple of the Haversine estimate, to
// stand in for the fact that routed distance is usually longer than a
// straight line. Set Fail to simulate a provider outage (spec seed
// scenario 4: "routing fallback").
type FakeProvider struct {
	Fail       bool
	Delay      time.Duration
	RouteRatio float64 // multiplier applied to the Haversine distance/ETA
}

// NewFakeProvider returns a FakeProvider with a realistic 1.3x routing ratio.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{RouteRatio: 1.3}
}

func (f *FakeProvider) RouteMatrix(ctx context.Context, origin domain.LatLon, destinations []domain.LatLon, at time.Time) ([]Estimate, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Fail {
		return nil, errors.New("fake routing provider unavailable")
	}
	ratio := f.RouteRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	out := make([]Estimate, len(destinations))
	for i, d := range destinations {
		m := haversineMeters(origin, d) * ratio
		out[i] = Estimate{
			DistanceM: m,
			ETAMin:    (m / 1000.0) / DefaultAvgSpeedKmh * 60.0,
			Source:    domain.SourceRouted,
		}
	}
	return out, nil
}
