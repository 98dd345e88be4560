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

// Package config loads the operational tunables of spec §6 and carries
// them on a context.Context, mirroring the teacher's settings.ToContext/
// FromContext seam. Unlike WeightsConfig (persisted, versioned scoring
// data owned by the repository layer), everything here is a deploy-time
// knob, hot-swappable except where noted.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Settings is the full set of recognized configuration options (spec §6).
type Settings struct {
	DeadlineRecommendMs int     `toml:"deadline.recommend_ms" validate:"min=1"`
	DeadlineRoutingMs   int     `toml:"deadline.routing_ms" validate:"min=1"`
	BufferMinMinutes    int     `toml:"buffer.min_minutes" validate:"min=0"`
	BufferPaddingMinutes int    `toml:"buffer.padding_minutes" validate:"min=0"`
	FatigueDailyHours   int     `toml:"fatigue.daily_hours" validate:"min=1"`
	FatigueDailyJobs    int     `toml:"fatigue.daily_jobs" validate:"min=1"`
	ScoreDMaxM          float64 `toml:"score.d_max_m" validate:"min=0"`
	ScoreHorizonFloorMin int    `toml:"score.horizon_floor_min" validate:"min=1"`
	RotationWindowDays  int     `toml:"rotation.window_days" validate:"min=1"`
	RotationCap         int     `toml:"rotation.cap" validate:"min=1"`
	CacheCellM          int     `toml:"cache.cell_m" validate:"min=1"`
	CacheRoutedTtlS     int     `toml:"cache.routed_ttl_s" validate:"min=1"`
	CandidatePrefilterK int     `toml:"candidate.prefilter_k" validate:"min=1"`
	NegativeCacheTtlS   int     `toml:"cache.negative_ttl_s" validate:"min=1"`
	LockWaitMs          int     `toml:"lock.wait_ms" validate:"min=1"`
}

// Default returns Settings populated with every default named in spec §6.
func Default() Settings {
	return Settings{
		DeadlineRecommendMs:  500,
		DeadlineRoutingMs:    1500,
		BufferMinMinutes:     15,
		BufferPaddingMinutes: 5,
		FatigueDailyHours:    10,
		FatigueDailyJobs:     4,
		ScoreDMaxM:           80_000,
		ScoreHorizonFloorMin: 60,
		RotationWindowDays:   14,
		RotationCap:          20,
		CacheCellM:           250,
		CacheRoutedTtlS:      86400,
		CandidatePrefilterK:  8,
		NegativeCacheTtlS:    60,
		LockWaitMs:           750,
	}
}

// RecommendDeadline is the overall request budget as a time.Duration.
func (s Settings) RecommendDeadline() time.Duration {
	return time.Duration(s.DeadlineRecommendMs) * time.Millisecond
}

// RoutingDeadline is the per-batch provider timeout as a time.Duration.
func (s Settings) RoutingDeadline() time.Duration {
	return time.Duration(s.DeadlineRoutingMs) * time.Millisecond
}

// LockWait is the maximum time to wait for a contractor's exclusive lock.
func (s Settings) LockWait() time.Duration {
	return time.Duration(s.LockWaitMs) * time.Millisecond
}

// Validate leverages struct tags with go-playground/validator, the same
// pattern the teacher repo's settings package uses.
func (s Settings) Validate() error {
	return validator.New().Struct(s)
}

// Load parses TOML bytes over the default settings, then validates the result.
func Load(raw []byte) (Settings, error) {
	s := Default()
	if len(raw) > 0 {
		if err := toml.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating config: %w", err)
	}
	return s, nil
}

type contextKey struct{}

var ctxKey = contextKey{}

// ToContext attaches Settings to ctx.
func ToContext(ctx context.Context, s Settings) context.Context {
	return context.WithValue(ctx, ctxKey, s)
}

// FromContext returns the Settings attached to ctx, or Default() if none was attached.
func FromContext(ctx context.Context) Settings {
	if v, ok := ctx.Value(ctxKey).(Settings); ok {
		return v
	}
	return Default()
}
