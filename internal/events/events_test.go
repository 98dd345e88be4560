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

package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartscheduler/core/internal/clock"
	"github.com/smartscheduler/core/internal/domain"
)

func newTestSink() (*Sink, *MemoryLog) {
	log := NewMemoryLog()
	ids := &clock.Sequence{Prefix: "evt"}
	sink := NewSink(log, clock.Fixed{At: time.Date(2025, 11, 12, 9, 0, 0, 0, time.UTC)}, ids, logr.Discard())
	return sink, log
}

func TestPublishAppendsBeforeInvokingSubscribers(t *testing.T) {
	sink, log := newTestSink()
	var invoked bool
	sink.Subscribe("dispatch/northeast", func(ctx context.Context, e domain.Event) {
		invoked = true
		assert.Len(t, log.All(), 1, "log record must be durable before the subscriber runs")
	})

	err := sink.Publish(context.Background(), domain.Event{
		Type:     domain.EventJobAssigned,
		Channels: []string{"dispatch/northeast"},
	})
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.Len(t, log.All(), 1)
}

func TestPublishFansOutToEveryListedChannel(t *testing.T) {
	sink, _ := newTestSink()
	var dispatchHit, contractorHit bool
	sink.Subscribe("dispatch/northeast", func(ctx context.Context, e domain.Event) { dispatchHit = true })
	sink.Subscribe(ContractorChannel("c1"), func(ctx context.Context, e domain.Event) { contractorHit = true })

	err := sink.Publish(context.Background(), domain.Event{
		Type:     domain.EventJobAssigned,
		Channels: []string{"dispatch/northeast", ContractorChannel("c1")},
	})
	require.NoError(t, err)
	assert.True(t, dispatchHit)
	assert.True(t, contractorHit)
}

func TestPublishIsIdempotentByEventID(t *testing.T) {
	sink, log := newTestSink()
	count := 0
	sink.Subscribe("dispatch/northeast", func(ctx context.Context, e domain.Event) { count++ })

	e := domain.Event{ID: "fixed-id", Type: domain.EventJobAssigned, Channels: []string{"dispatch/northeast"}}
	require.NoError(t, sink.Publish(context.Background(), e))
	require.NoError(t, sink.Publish(context.Background(), e))

	assert.Equal(t, 1, count)
	assert.Len(t, log.All(), 1)
}

func TestPublishSurvivesSubscriberPanic(t *testing.T) {
	sink, log := newTestSink()
	sink.Subscribe("dispatch/northeast", func(ctx context.Context, e domain.Event) {
		panic("boom")
	})

	err := sink.Publish(context.Background(), domain.Event{
		Type:     domain.EventJobAssigned,
		Channels: []string{"dispatch/northeast"},
	})
	require.NoError(t, err)
	assert.Len(t, log.All(), 1)
}

func TestRegionAndContractorChannelNames(t *testing.T) {
	assert.Equal(t, "dispatch/northeast", RegionChannel("northeast"))
	assert.Equal(t, "contractor/c1", ContractorChannel("c1"))
}
