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

// Package events implements the in-process event sink (C10): a
// synchronous publisher over an append-only log with best-effort
// fan-out to named channels (spec §4.9). Subscribers are expected to
// be idempotent keyed by event id; the sink itself deduplicates
// replays of an id it has already logged.
package events

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/domain"
)

// Log is the append-only event-log store. A concrete repo-backed
// implementation can satisfy this with a durable table; the in-memory
// implementation below is the default.
type Log interface {
	Append(ctx context.Context, entry domain.EventLogEntry) error
	// Seen reports whether an entry with this id has already been
	// appended, for idempotent-replay detection.
	Seen(ctx context.Context, id string) bool
}

// Subscriber receives every event published to a channel it is
// registered on.
type Subscriber func(ctx context.Context, e domain.Event)

// Sink is the synchronous, in-process event publisher.
type Sink struct {
	log    Log
	clock  clock.Clock
	ids    clock.IDProvider
	logger logr.Logger

	mu          sync.RWMutex
	subscribers map[string][]Subscriber
}

// NewSink constructs a Sink writing to log and timestamping with clk.
func NewSink(log Log, clk clock.Clock, ids clock.IDProvider, logger logr.Logger) *Sink {
	return &Sink{
		log:         log,
		clock:       clk,
		ids:         ids,
		logger:      logger,
		subscribers: map[string][]Subscriber{},
	}
}

// Subscribe registers fn to run synchronously on every event published
// to channel.
func (s *Sink) Subscribe(channel string, fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[channel] = append(s.subscribers[channel], fn)
}

// Publish writes the append-only log entry, then invokes every
// subscriber registered on one of e.Channels, in channel order. If e.ID
// is empty one is generated. A log record that already exists for this
// id is treated as a successful no-op replay: the entry is not
// re-appended and subscribers are not re-invoked (spec §4.9: "Consumers
// are expected to be idempotent keyed by event id").
//
// Publish always returns nil once the log record is durable; a
// subscriber panic or error does not unwind the publish — the record
// stands regardless (spec §4.9: "if subscriber invocation fails, the
// log record is retained and the publish operation still returns
// success").
func (s *Sink) Publish(ctx context.Context, e domain.Event) error {
	if e.ID == "" {
		e.ID = s.ids.NewID()
	}
	if e.PublishedAt.IsZero() {
		e.PublishedAt = s.clock.Now()
	}

	if s.log.Seen(ctx, e.ID) {
		return nil
	}

	entry := domain.EventLogEntry{
		ID:          e.ID,
		Type:        e.Type,
		Payload:     e.Payload,
		PublishedAt: e.PublishedAt,
		Channels:    e.Channels,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range e.Channels {
		for _, fn := range s.subscribers[ch] {
			s.invoke(ctx, fn, e)
		}
	}
	return nil
}

func (s *Sink) invoke(ctx context.Context, fn Subscriber, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(nil, "event subscriber panicked", "eventId", e.ID, "eventType", e.Type, "recovered", r)
		}
	}()
	fn(ctx, e)
}

// RegionChannel builds the dispatch channel name for a region (spec
// §4.9/§6: "dispatch/{region}").
func RegionChannel(region string) string { return "dispatch/" + region }

// ContractorChannel builds the per-contractor channel name (spec §6:
// "contractor/{contractorId}").
func ContractorChannel(contractorID string) string { return "contractor/" + contractorID }

// MemoryLog is a thread-safe in-memory Log that keeps entries in append
// order; it does not sort them by PublishedAt.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []domain.EventLogEntry
	seen    map[string]struct{}
}

// NewMemoryLog constructs an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{seen: map[string]struct{}{}}
}

func (l *MemoryLog) Append(ctx context.Context, entry domain.EventLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[entry.ID]; ok {
		return nil
	}
	l.seen[entry.ID] = struct{}{}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLog) Seen(ctx context.Context, id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// All returns every logged entry in publish order. Intended for tests
// and for replaying the log to a freshly started subscriber.
func (l *MemoryLog) All() []domain.EventLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.EventLogEntry(nil), l.entries...)
}
