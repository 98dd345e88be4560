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

// Package distance implements the two-tier Distance & ETA service (C2):
// a deterministic Haversine "cheap matrix" and a cached, provider-backed
// "refined matrix" that falls back to cheap values on provider error or
// timeout (spec §4.1).
package distance

import (
	"context"
	"fmt"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/avast/retry-go"

	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/logging"
)

const earthRadiusM = 6371000.0

// DefaultAvgSpeedKmh is the fixed average speed used for the cheap matrix.
const DefaultAvgSpeedKmh = 50.0

// Estimate is one distance/ETA figure, tagged with its source so the
// scorer can down-weight confidence on fallback (spec §4.1 contracts).
type Estimate struct {
	DistanceM float64
	ETAMin    float64
	Source    domain.DistanceSource
}

// Provider is the external routing provider abstraction. A real
// implementation calls out over HTTP; tests use a deterministic fake.
// Modeled on the teacher's provider-interface-plus-batcher shape
// (pkg/providers/pricing, pkg/batcher), generalized from AWS API batching
// to routing-matrix batching.
type Provider interface {
	RouteMatrix(ctx context.Context, origin domain.LatLon, destinations []domain.LatLon, at time.Time) ([]Estimate, error)
}

// Options configures the Service's cache quantization and retry policy.
type Options struct {
	CellMeters      int
	RoutedTTL       time.Duration
	NegativeTTL     time.Duration
	RoutingDeadline time.Duration
	AvgSpeedKmh     float64
}

// DefaultOptions mirrors the spec §6 defaults.
func DefaultOptions() Options {
	return Options{
		CellMeters:      250,
		RoutedTTL:       24 * time.Hour,
		NegativeTTL:     60 * time.Second,
		RoutingDeadline: 1500 * time.Millisecond,
		AvgSpeedKmh:     DefaultAvgSpeedKmh,
	}
}

// Service is the C2 Distance & ETA service: cheap Haversine matrix plus a
// cached, provider-backed refined matrix with fallback.
type Service struct {
	provider Provider
	cache    *gocache.Cache
	negative *gocache.Cache
	opts     Options
}

// NewService constructs a Service. provider may be nil, in which case
// RefinedMatrix always falls back to cheap values (useful for
// provider-less deployments and for tests that only exercise CheapMatrix).
func NewService(provider Provider, opts Options) *Service {
	return &Service{
		provider: provider,
		cache:    gocache.New(opts.RoutedTTL, opts.RoutedTTL/2+time.Minute),
		negative: gocache.New(opts.NegativeTTL, opts.NegativeTTL),
		opts:     opts,
	}
}

// CheapMatrix returns Haversine-distance estimates at a fixed average
// speed. It is total-ordered, deterministic, and never fails (spec §4.1).
func (s *Service) CheapMatrix(origin domain.LatLon, destinations []domain.LatLon) []Estimate {
	out := make([]Estimate, len(destinations))
	speed := s.opts.AvgSpeedKmh
	if speed <= 0 {
		speed = DefaultAvgSpeedKmh
	}
	for i, d := range destinations {
		m := haversineMeters(origin, d)
		out[i] = Estimate{
			DistanceM: m,
			ETAMin:    (m / 1000.0) / speed * 60.0,
			Source:    domain.SourceHaversine,
		}
	}
	return out
}

// RefinedMatrix consults the cache, falling back to a batched provider
// call on miss, and to cheap values on any provider failure or timeout
// (spec §4.1). It never returns fewer entries than requested.
func (s *Service) RefinedMatrix(ctx context.Context, origin domain.LatLon, destinations []domain.LatLon, at time.Time) []Estimate {
	log := logging.FromContext(ctx)
	cheap := s.CheapMatrix(origin, destinations)
	out := make([]Estimate, len(destinations))
	missIdx := make([]int, 0, len(destinations))

	for i, d := range destinations {
		key := cacheKey(origin, d, at, s.opts.CellMeters)
		if v, ok := s.cache.Get(key); ok {
			out[i] = v.(Estimate)
			continue
		}
		if _, negHit := s.negative.Get(key); negHit {
			out[i] = cheap[i]
			continue
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 || s.provider == nil {
		for _, i := range missIdx {
			out[i] = cheap[i]
		}
		return out
	}

	reqDests := make([]domain.LatLon, len(missIdx))
	for j, i := range missIdx {
		reqDests[j] = destinations[i]
	}

	batchCtx, cancel := context.WithTimeout(ctx, s.opts.RoutingDeadline)
	defer cancel()

	var results []Estimate
	err := retry.Do(
		func() error {
			var rerr error
			results, rerr = s.provider.RouteMatrix(batchCtx, origin, reqDests, at)
			return rerr
		},
		retry.Context(batchCtx),
		retry.Attempts(3),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)

	if err != nil || len(results) != len(reqDests) {
		log.V(1).Info("refined matrix falling back to cheap estimates", "error", err, "destinations", len(reqDests))
		for _, i := range missIdx {
			out[i] = cheap[i]
			s.negative.SetDefault(cacheKey(origin, destinations[i], at, s.opts.CellMeters), true)
		}
		return out
	}

	for j, i := range missIdx {
		est := results[j]
		est.Source = domain.SourceRouted
		out[i] = est
		s.cache.Set(cacheKey(origin, destinations[i], at, s.opts.CellMeters), est, s.opts.RoutedTTL)
	}
	return out
}

func haversineMeters(a, b domain.LatLon) float64 {
	lat1, lon1 := toRad(a.Lat), toRad(a.Lon)
	lat2, lon2 := toRad(b.Lat), toRad(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }

// quantizeCell rounds a lat/lon pair into a coarse grid cell id sized
// roughly cellMeters on a side (spec §4.1 caching policy).
func quantizeCell(p domain.LatLon, cellMeters int) string {
	if cellMeters <= 0 {
		cellMeters = 250
	}
	// ~111,320 meters per degree of latitude; longitude scaled by cos(lat).
	degPerCellLat := float64(cellMeters) / 111320.0
	latCos := math.Cos(toRad(p.Lat))
	if latCos < 0.01 {
		latCos = 0.01
	}
	degPerCellLon := float64(cellMeters) / (111320.0 * latCos)
	cellLat := int(math.Floor(p.Lat / degPerCellLat))
	cellLon := int(math.Floor(p.Lon / degPerCellLon))
	return fmt.Sprintf("%d:%d", cellLat, cellLon)
}

func hourOfWeekBucket(at time.Time) int {
	return int(at.Weekday())*24 + at.Hour()
}

func cacheKey(origin, dest domain.LatLon, at time.Time, cellMeters int) string {
	return fmt.Sprintf("%s|%s|%d", quantizeCell(origin, cellMeters), quantizeCell(dest, cellMeters), hourOfWeekBucket(at))
}
