package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/queue"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

type processedEvent struct {
	eventType domain.EventType
	payload   map[string]any
	deadline  bool
}

type recordingProcessor struct {
	mu      sync.Mutex
	events  []processedEvent
	panicOn domain.EventType
	err     error
	done    chan struct{}
}

func newRecordingProcessor(buffer int) *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, buffer)}
}

func (p *recordingProcessor) ProcessEvent(ctx context.Context, eventType domain.EventType, payload map[string]any) error {
	defer func() { p.done <- struct{}{} }()
	_, hasDeadline := ctx.Deadline()

	p.mu.Lock()
	p.events = append(p.events, processedEvent{eventType: eventType, payload: payload, deadline: hasDeadline})
	p.mu.Unlock()

	if eventType == p.panicOn {
		panic("processor exploded")
	}
	return p.err
}

func (p *recordingProcessor) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func (p *recordingProcessor) snapshot() []processedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]processedEvent(nil), p.events...)
}

func TestEventDispatcher_SubmitProcesses(t *testing.T) {
	proc := newRecordingProcessor(1)
	d := NewEventDispatcher(proc, queue.NewPriorityQueue(10), 2, logger.NewNop())
	d.Start()
	defer d.Stop(context.Background())

	id, err := d.Submit(domain.EventSessionScheduled, map[string]any{"id": "s1"}, domain.PriorityHigh)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	proc.wait(t, 1)
	events := proc.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSessionScheduled, events[0].eventType)
	assert.Equal(t, "s1", events[0].payload["id"])
	assert.False(t, events[0].deadline, "no deadline spans the whole event")
}

func TestEventDispatcher_PayloadIsCopied(t *testing.T) {
	proc := newRecordingProcessor(1)
	d := NewEventDispatcher(proc, queue.NewPriorityQueue(10), 1, logger.NewNop())

	payload := map[string]any{"client": map[string]any{"name": "Jane"}}
	_, err := d.Submit(domain.EventClientCreated, payload, domain.PriorityMedium)
	require.NoError(t, err)
	payload["client"].(map[string]any)["name"] = "Changed"

	d.Start()
	proc.wait(t, 1)
	require.NoError(t, d.Stop(context.Background()))

	got := proc.snapshot()[0].payload["client"].(map[string]any)["name"]
	assert.Equal(t, "Jane", got)
}

func TestEventDispatcher_QueueFull(t *testing.T) {
	d := NewEventDispatcher(newRecordingProcessor(2), queue.NewPriorityQueue(1), 1, logger.NewNop())

	_, err := d.Submit(domain.EventTaskCreated, nil, domain.PriorityLow)
	require.NoError(t, err)

	_, err = d.Submit(domain.EventTaskCreated, nil, domain.PriorityLow)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Equal(t, 1, d.QueueSize())
}

func TestEventDispatcher_RejectsEmptyType(t *testing.T) {
	d := NewEventDispatcher(newRecordingProcessor(1), queue.NewPriorityQueue(1), 1, logger.NewNop())
	_, err := d.Submit("", nil, domain.PriorityLow)
	assert.Error(t, err)
}

func TestEventDispatcher_StopDrainsQueue(t *testing.T) {
	proc := newRecordingProcessor(3)
	d := NewEventDispatcher(proc, queue.NewPriorityQueue(10), 1, logger.NewNop())

	for _, p := range []domain.NotificationPriority{domain.PriorityLow, domain.PriorityUrgent, domain.PriorityMedium} {
		_, err := d.Submit(domain.EventType("evt."+string(p)), nil, p)
		require.NoError(t, err)
	}

	d.Start()
	require.NoError(t, d.Stop(context.Background()))

	events := proc.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventType("evt.urgent"), events[0].eventType)
	assert.Equal(t, domain.EventType("evt.medium"), events[1].eventType)
	assert.Equal(t, domain.EventType("evt.low"), events[2].eventType)

	_, err := d.Submit(domain.EventTaskCreated, nil, domain.PriorityLow)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}

func TestEventDispatcher_ProcessorFailuresDoNotStopWorkers(t *testing.T) {
	proc := newRecordingProcessor(3)
	proc.panicOn = "boom"
	proc.err = errors.New("transient")
	d := NewEventDispatcher(proc, queue.NewPriorityQueue(10), 1, logger.NewNop())
	d.Start()

	_, _ = d.Submit("boom", nil, domain.PriorityMedium)
	_, _ = d.Submit("fails", nil, domain.PriorityMedium)
	_, _ = d.Submit("after", nil, domain.PriorityMedium)
	proc.wait(t, 3)

	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, proc.snapshot(), 3)
}

func TestEventDispatcher_StopHonorsContext(t *testing.T) {
	block := make(chan struct{})
	proc := blockingProcessor{release: block}
	d := NewEventDispatcher(proc, queue.NewPriorityQueue(1), 1, logger.NewNop())
	d.Start()
	_, err := d.Submit(domain.EventTaskCreated, nil, domain.PriorityLow)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	close(block)
}

type blockingProcessor struct {
	release chan struct{}
}

func (p blockingProcessor) ProcessEvent(ctx context.Context, _ domain.EventType, _ map[string]any) error {
	<-p.release
	return nil
}
