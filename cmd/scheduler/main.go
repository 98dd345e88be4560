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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartscheduler/core/internal/assignment"
	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/config"
	"github.com/smartscheduler/core/internal/coordinator"
	"github.com/smartscheduler/core/internal/distance"
	"github.com/smartscheduler/core/internal/domain"
	"github.com/smartscheduler/core/internal/events"
	"github.com/smartscheduler/core/internal/httpapi"
	"github.com/smartscheduler/core/internal/logging"
	"github.com/smartscheduler/core/internal/repo"
)

// Options for running this binary.
type Options struct {
	Addr         string
	ConfigPath   string
	EnableVerbose bool
}

var skillCatalogue = []string{"hvac", "electrical", "plumbing", "appliance", "general"}

func main() {
	options := Options{}
	flag.StringVar(&options.Addr, "addr", ":8080", "The address the HTTP API binds to.")
	flag.StringVar(&options.ConfigPath, "config", "", "Path to a TOML file overriding the default tunables.")
	flag.BoolVar(&options.EnableVerbose, "verbose", false, "Enable verbose development-mode logging.")
	flag.Parse()

	log, err := logging.NewZap(options.EnableVerbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to build logger: %v\n", err)
		os.Exit(1)
	}

	settings := config.Default()
	if options.ConfigPath != "" {
		raw, readErr := os.ReadFile(options.ConfigPath)
		if readErr != nil {
			log.Error(readErr, "unable to read config file", "path", options.ConfigPath)
			os.Exit(1)
		}
		settings, err = config.Load(raw)
		if err != nil {
			log.Error(err, "unable to load config")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, log)
	ctx = config.ToContext(ctx, settings)

	// Explicit construction graph — every component receives its
	// dependencies directly, no service locator (spec §9).
	realClock := clock.Real{}
	ids := clock.UUIDProvider{}

	store := repo.NewMemoryStore(skillCatalogue, domain.WeightsConfig{
		Version:              1,
		WeightAvailability:   0.3,
		WeightRating:         0.3,
		WeightDistance:       0.3,
		WeightRotation:       0.1,
		BufferMinMinutes:     settings.BufferMinMinutes,
		BufferPaddingMinutes: settings.BufferPaddingMinutes,
		FatigueDailyHours:    settings.FatigueDailyHours,
		FatigueDailyJobs:     settings.FatigueDailyJobs,
		DistanceCapM:         settings.ScoreDMaxM,
		HorizonFloorMin:      settings.ScoreHorizonFloorMin,
		RotationWindowDays:   settings.RotationWindowDays,
		RotationCap:          settings.RotationCap,
	})

	distanceSvc := distance.NewService(nil, distance.Options{
		CellMeters:      settings.CacheCellM,
		RoutedTTL:       time.Duration(settings.CacheRoutedTtlS) * time.Second,
		NegativeTTL:     time.Duration(settings.NegativeCacheTtlS) * time.Second,
		RoutingDeadline: settings.RoutingDeadline(),
		AvgSpeedKmh:     distance.DefaultAvgSpeedKmh,
	})

	eventLog := events.NewMemoryLog()
	sink := events.NewSink(eventLog, realClock, ids, log.WithName("events"))
	sink.Subscribe("dispatch/unknown", func(ctx context.Context, e domain.Event) {
		logging.FromContext(ctx).V(1).Info("dispatch event", "type", e.Type, "payload", e.Payload)
	})

	coord := &coordinator.Coordinator{
		Contractors: store.Contractors,
		Jobs:        store.Jobs,
		Assignments: store.Assignments,
		Audits:      store.Audits,
		Weights:     store.Weights,
		Distance:    distanceSvc,
		Sink:        sink,
		Clock:       realClock,
		IDs:         ids,
	}
	tx := assignment.NewTransaction(store.Contractors, store.Jobs, store.Assignments, store.Audits, distanceSvc, sink, realClock, ids)

	api := &httpapi.API{Coordinator: coord, Assignment: tx, Audits: store.Audits, Settings: settings}

	server := &http.Server{
		Addr:         options.Addr,
		Handler:      api.NewRouter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting HTTP API", "addr", options.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "HTTP server stopped unexpectedly")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "error during graceful shutdown")
	}
}
