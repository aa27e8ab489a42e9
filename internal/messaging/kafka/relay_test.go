package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu      sync.Mutex
	events  []OutboxEvent
	sent    []string
	failed  map[string]string
	listErr error
	sweepAt time.Time
	lease   time.Duration
}

func (f *fakeOutbox) Create(_ context.Context, event OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimPending(_ context.Context, limit, maxRetries int, lease time.Duration) ([]OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lease = lease
	var out []OutboxEvent
	for i := range f.events {
		e := &f.events[i]
		if e.Status == OutboxStatusSent || e.Status == OutboxStatusProcessing || e.RetryCount >= maxRetries {
			continue
		}
		e.Status = OutboxStatusProcessing
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Status = OutboxStatusSent
		}
	}
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[id] = reason
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Status = OutboxStatusFailed
			f.events[i].RetryCount++
		}
	}
	return nil
}

func (f *fakeOutbox) DeleteSentBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepAt = before
	var kept []OutboxEvent
	var deleted int64
	for _, e := range f.events {
		if e.Status == OutboxStatusSent {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	failIDs   map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIDs[event.ID] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func pendingEvent(id string) OutboxEvent {
	return OutboxEvent{
		ID:          id,
		AggregateID: "staff-1",
		EventType:   EventTypeSettlementRecorded,
		Topic:       "payroll.settlements",
		Payload:     []byte(`{}`),
		Status:      OutboxStatusPending,
	}
}

func TestRelay_ProcessPending(t *testing.T) {
	t.Run("publishes and marks events sent", func(t *testing.T) {
		repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1"), pendingEvent("e2")}}
		pub := &fakePublisher{}
		relay := NewRelay(repo, pub, nil, RelayOptions{})

		sent, err := relay.ProcessPending(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, sent)
		assert.Equal(t, []string{"e1", "e2"}, repo.sent)
		assert.Len(t, pub.published, 2)
	})

	t.Run("failed publish is marked failed and the rest continue", func(t *testing.T) {
		repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1"), pendingEvent("e2")}}
		pub := &fakePublisher{failIDs: map[string]bool{"e1": true}}
		relay := NewRelay(repo, pub, nil, RelayOptions{})

		sent, err := relay.ProcessPending(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Equal(t, []string{"e2"}, repo.sent)
		assert.Equal(t, "broker unavailable", repo.failed["e1"])
	})

	t.Run("events past max retries are not listed", func(t *testing.T) {
		exhausted := pendingEvent("e1")
		exhausted.RetryCount = 3
		repo := &fakeOutbox{events: []OutboxEvent{exhausted}}
		pub := &fakePublisher{}
		relay := NewRelay(repo, pub, nil, RelayOptions{MaxRetries: 3})

		sent, err := relay.ProcessPending(context.Background())

		require.NoError(t, err)
		assert.Zero(t, sent)
		assert.Empty(t, pub.published)
	})

	t.Run("batch size limits one pass", func(t *testing.T) {
		repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1"), pendingEvent("e2"), pendingEvent("e3")}}
		relay := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{BatchSize: 2})

		sent, err := relay.ProcessPending(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, sent)
	})

	t.Run("claimed events are not handed out twice", func(t *testing.T) {
		repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1"), pendingEvent("e2")}}
		first := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{BatchSize: 1})
		second := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{BatchSize: 1})

		claimed, err := repo.ClaimPending(context.Background(), 1, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		sent, err := second.ProcessPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Equal(t, []string{"e2"}, repo.sent)

		sent, err = first.ProcessPending(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	})

	t.Run("default claim lease", func(t *testing.T) {
		repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1")}}
		relay := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{})

		_, err := relay.ProcessPending(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, repo.lease)
	})

	t.Run("list error is returned", func(t *testing.T) {
		repo := &fakeOutbox{listErr: errors.New("db down")}
		relay := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{})

		_, err := relay.ProcessPending(context.Background())

		assert.EqualError(t, err, "db down")
	})
}

func TestRelay_Sweep(t *testing.T) {
	sent := pendingEvent("e1")
	sent.Status = OutboxStatusSent
	repo := &fakeOutbox{events: []OutboxEvent{sent, pendingEvent("e2")}}
	relay := NewRelay(repo, &fakePublisher{}, nil, RelayOptions{})

	before := time.Now()
	deleted, err := relay.Sweep(context.Background(), time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, repo.events, 1)
	assert.WithinDuration(t, before.Add(-time.Hour), repo.sweepAt, time.Second)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	repo := &fakeOutbox{events: []OutboxEvent{pendingEvent("e1")}}
	pub := &fakePublisher{}
	relay := NewRelay(repo, pub, nil, RelayOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewMessage(t *testing.T) {
	msg := newMessage(pendingEvent("e1"))

	assert.Equal(t, "payroll.settlements", msg.Topic)
	assert.Equal(t, []byte("staff-1"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("e1"), msg.Headers[0].Value)
}
