package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcway-dev/orchestra/internal/domain"
)

func TestSubscribeReceivesEventsInOrder(t *testing.T) {
	b := New(16)

	var received []domain.EventType
	b.Subscribe(func(e domain.AgentEvent) {
		received = append(received, e.Type)
	})

	b.Publish(domain.NewAgentCreatedEvent("a1", domain.AgentCreatedPayload{Role: domain.RoleImplementor}, time.Now()))
	b.Publish(domain.NewAgentStatusChangedEvent("a1", domain.AgentStatusChangedPayload{Current: domain.AgentActive}, time.Now()))

	require.Equal(t, []domain.EventType{domain.EventAgentCreated, domain.EventAgentStatusChanged}, received)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(16)

	var count int
	id := b.Subscribe(func(domain.AgentEvent) { count++ })

	b.Publish(domain.NewAgentCreatedEvent("a1", domain.AgentCreatedPayload{}, time.Now()))
	b.Unsubscribe(id)
	b.Publish(domain.NewAgentCreatedEvent("a1", domain.AgentCreatedPayload{}, time.Now()))

	assert.Equal(t, 1, count)
}

func TestSubscribePanicIsRecovered(t *testing.T) {
	b := New(16)
	b.Subscribe(func(domain.AgentEvent) { panic("boom") })

	var sawSecond bool
	b.Subscribe(func(domain.AgentEvent) { sawSecond = true })

	done := make(chan struct{})
	go func() {
		b.Publish(domain.NewAgentCreatedEvent("a1", domain.AgentCreatedPayload{}, time.Now()))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not return; panic in handler was not recovered")
	}
	assert.True(t, sawSecond, "panicking handler must not block sibling handlers")
}

func TestSubscribeAgentFiltersByEventType(t *testing.T) {
	b := New(16)
	b.SubscribeAgent(AgentSubscription{
		AgentID:    "a1",
		AgentName:  "impl-1",
		EventTypes: []domain.EventType{domain.EventTaskDelegated},
	})

	b.Publish(domain.NewAgentCreatedEvent("a2", domain.AgentCreatedPayload{}, time.Now()))
	b.Publish(domain.NewTaskDelegatedEvent("a2", domain.TaskDelegatedPayload{TaskID: "t1", AssignedTo: "a1"}, time.Now()))

	drained := b.DrainPendingEvents("a1")
	require.Len(t, drained, 1)
	assert.Equal(t, domain.EventTaskDelegated, drained[0].Type)
}

func TestSubscribeAgentExcludeSelf(t *testing.T) {
	b := New(16)
	b.SubscribeAgent(AgentSubscription{AgentID: "a1", ExcludeSelf: true})

	b.Publish(domain.NewAgentStatusChangedEvent("a1", domain.AgentStatusChangedPayload{}, time.Now()))
	b.Publish(domain.NewAgentStatusChangedEvent("a2", domain.AgentStatusChangedPayload{}, time.Now()))

	drained := b.DrainPendingEvents("a1")
	require.Len(t, drained, 1)
	assert.Equal(t, "a2", drained[0].AgentID)
}

func TestDrainPendingEventsIsAtomic(t *testing.T) {
	b := New(16)
	b.SubscribeAgent(AgentSubscription{AgentID: "a1"})

	b.Publish(domain.NewAgentCreatedEvent("a2", domain.AgentCreatedPayload{}, time.Now()))
	b.Publish(domain.NewAgentCompletedEvent("a2", domain.AgentCompletedPayload{}, time.Now()))

	first := b.DrainPendingEvents("a1")
	require.Len(t, first, 2)
	assert.Empty(t, b.DrainPendingEvents("a1"), "second drain must return nothing")
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := New(16, WithQueueCapacity(2))
	b.SubscribeAgent(AgentSubscription{AgentID: "a1"})

	b.Publish(domain.NewTaskStatusChangedEvent("x", domain.TaskStatusChangedPayload{TaskID: "t1"}, time.Now()))
	b.Publish(domain.NewTaskStatusChangedEvent("x", domain.TaskStatusChangedPayload{TaskID: "t2"}, time.Now()))
	b.Publish(domain.NewTaskStatusChangedEvent("x", domain.TaskStatusChangedPayload{TaskID: "t3"}, time.Now()))

	drained := b.DrainPendingEvents("a1")
	require.Len(t, drained, 2)
	assert.Equal(t, "t2", drained[0].TaskStatusChanged.TaskID)
	assert.Equal(t, "t3", drained[1].TaskStatusChanged.TaskID)
}

func TestUnsubscribeAgentDiscardsQueue(t *testing.T) {
	b := New(16)
	b.SubscribeAgent(AgentSubscription{AgentID: "a1"})
	b.Publish(domain.NewAgentCreatedEvent("a2", domain.AgentCreatedPayload{}, time.Now()))

	b.UnsubscribeAgent("a1")
	assert.Empty(t, b.DrainPendingEvents("a1"))
}

func TestCriticalEventsAreReplayable(t *testing.T) {
	b := New(16)
	b.Publish(domain.NewAgentCompletedEvent("a1", domain.AgentCompletedPayload{Report: domain.CompletionReport{Success: true}}, time.Now()))
	b.Publish(domain.NewMessageReceivedEvent("a1", domain.MessageReceivedPayload{}, time.Now()))

	replay := b.Replay("a1")
	require.Len(t, replay, 1)
	assert.Equal(t, domain.EventAgentCompleted, replay[0].Type)
}

func TestReplayUnknownAgentReturnsNil(t *testing.T) {
	b := New(16)
	assert.Nil(t, b.Replay("unknown"))
}
