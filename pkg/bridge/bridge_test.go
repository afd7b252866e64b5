package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/scout/pkg/types"
)

func drain(t *testing.T, sub *Subscription) []*types.StreamEvent {
	t.Helper()
	var events []*types.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Errorf("stream for %s not closed; got %d events", sub.RequestID(), len(events))
			return events
		}
	}
}

func TestLifecycleDeliveredInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	sub := b.Subscribe("r1")

	go func() {
		b.EmitStart("r1")
		for i := 0; i < 100; i++ {
			b.EmitChunk("r1", fmt.Sprintf("%d,", i))
		}
		b.EmitEnd("r1", types.NewAnswer("done", "https://example.com/"))
	}()

	events := drain(t, sub)
	require.Len(t, events, 102)
	assert.True(t, events[0].IsStartEvent())
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprintf("%d,", i), events[i+1].Delta)
		assert.Equal(t, "r1", events[i+1].RequestID)
	}
	end := events[101]
	assert.Equal(t, types.EventTypeEnd, end.Type)
	assert.Equal(t, "done", end.Response.Content)
	assert.Equal(t, "https://example.com/", end.Response.URL)

	ids := map[string]bool{}
	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		ids[ev.ID] = true
	}
	assert.Len(t, ids, len(events))
	assert.False(t, b.Active("r1"))
}

func TestNothingAfterTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	sub := b.Subscribe("r1")

	b.EmitStart("r1")
	b.EmitError("r1", "The model provider is currently unavailable. Please try again.")
	b.EmitChunk("r1", "late")
	b.EmitEnd("r1", types.NewAnswer("late", ""))

	events := drain(t, sub)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventTypeError, events[1].Type)
	assert.Equal(t, "The model provider is currently unavailable. Please try again.", events[1].Message)
}

func TestConcurrentRequestsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithBuffer(1))
	r1 := b.Subscribe("R1")
	r2 := b.Subscribe("R2")

	var wg sync.WaitGroup
	for _, id := range []string{"R1", "R2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			b.EmitStart(id)
			for i := 0; i < 50; i++ {
				b.EmitChunk(id, id)
			}
			b.EmitEnd(id, types.NewAnswer(id, ""))
		}(id)
	}

	var got1, got2 []*types.StreamEvent
	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); got1 = drain(t, r1) }()
	go func() { defer readers.Done(); got2 = drain(t, r2) }()
	readers.Wait()
	wg.Wait()

	require.Len(t, got1, 52)
	require.Len(t, got2, 52)
	for _, ev := range got1 {
		assert.Equal(t, "R1", ev.RequestID)
	}
	for _, ev := range got2 {
		assert.Equal(t, "R2", ev.RequestID)
	}
}

func TestEmitWithoutSubscriberIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	b.EmitStart("nobody")
	b.EmitEnd("nobody", types.NewAnswer("", ""))
	assert.False(t, b.Active("nobody"))
}

func TestMultipleSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	a := b.Subscribe("r1")
	c := b.Subscribe("r1")

	go func() {
		b.EmitStart("r1")
		b.EmitChunk("r1", "x")
		b.EmitEnd("r1", types.NewAnswer("x", ""))
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	var ea, ec []*types.StreamEvent
	go func() { defer wg.Done(); ea = drain(t, a) }()
	go func() { defer wg.Done(); ec = drain(t, c) }()
	wg.Wait()

	assert.Len(t, ea, 3)
	assert.Len(t, ec, 3)
}

func TestUnsubscribeUnblocksEmit(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithBuffer(0))
	sub := b.Subscribe("r1")

	emitted := make(chan struct{})
	go func() {
		b.EmitStart("r1")
		close(emitted)
	}()

	select {
	case <-emitted:
		t.Fatal("emit returned before the unbuffered subscriber read")
	case <-time.After(50 * time.Millisecond):
	}

	sub.Close()
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after unsubscribe")
	}
	assert.False(t, b.Active("r1"))
	sub.Close()
}

func TestAbandon(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithBuffer(0))
	sub := b.Subscribe("r1")

	emitted := make(chan struct{})
	go func() {
		b.EmitStart("r1")
		close(emitted)
	}()
	time.Sleep(20 * time.Millisecond)

	b.Abandon("r1")
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after abandon")
	}

	b.EmitChunk("r1", "after")
	b.EmitEnd("r1", types.NewAnswer("after", ""))
	b.Abandon("r1")

	events := drain(t, sub)
	for _, ev := range events {
		assert.NotEqual(t, "after", ev.Delta)
		assert.False(t, ev.IsTerminal())
	}
	sub.Close()
}
