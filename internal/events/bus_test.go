package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, cfg Config) *Bus {
	t.Helper()
	bus := NewBus(cfg, zap.NewNop())
	t.Cleanup(bus.Close)
	return bus
}

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func ev(i int) Event {
	return Event{Kind: ChatPromptCreated, Data: fmt.Sprintf(`{"n":%d}`, i)}
}

func TestBus_SingleDelivery(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	sub, err := bus.Subscribe("p")
	require.NoError(t, err)

	want := Event{Kind: "new_chat_prompt", Data: `{"id":"chp_1"}`}
	bus.Publish("p", want)

	assert.Equal(t, []Event{want}, drain(sub))
}

func TestBus_OrderIsSharedAcrossSubscribers(t *testing.T) {
	bus := newTestBus(t, Config{BufferSize: 1000})
	subs := make([]*Subscription, 4)
	for i := range subs {
		var err error
		subs[i], err = bus.Subscribe("p")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish("p", ev(w*1000+i))
			}
		}(w)
	}
	wg.Wait()

	first := drain(subs[0])
	require.Len(t, first, 400)
	for _, sub := range subs[1:] {
		assert.Equal(t, first, drain(sub))
	}
}

func TestBus_SubscriptionBoundary(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	early, err := bus.Subscribe("p")
	require.NoError(t, err)

	bus.Publish("p", ev(1))
	late, err := bus.Subscribe("p")
	require.NoError(t, err)
	bus.Publish("p", ev(2))

	assert.Equal(t, []Event{ev(1), ev(2)}, drain(early))
	assert.Equal(t, []Event{ev(2)}, drain(late))
}

func TestBus_ProjectsAreIsolated(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	a, _ := bus.Subscribe("a")
	b, _ := bus.Subscribe("b")

	bus.Publish("a", ev(1))

	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus(t, DefaultConfig())
	sub, err := bus.Subscribe("p")
	require.NoError(t, err)

	bus.Unsubscribe(sub)
	bus.Publish("p", ev(1))

	e, ok := <-sub.Events()
	assert.False(t, ok, "channel must be closed, got %v", e)

	assert.NotPanics(t, func() {
		bus.Unsubscribe(sub)
		bus.Unsubscribe(nil)
	})
	assert.Equal(t, 0, bus.Stats().Total)
}

func TestBus_DropOldest(t *testing.T) {
	bus := newTestBus(t, Config{BufferSize: 3, Policy: DropOldest})
	sub, _ := bus.Subscribe("p")

	for i := 1; i <= 5; i++ {
		bus.Publish("p", ev(i))
	}

	assert.Equal(t, []Event{ev(3), ev(4), ev(5)}, drain(sub))
	assert.Equal(t, int64(2), sub.Dropped())
	assert.False(t, sub.Overflowed())
	assert.Equal(t, int64(2), bus.Stats().Dropped)
}

func TestBus_DisconnectSlowSubscriber(t *testing.T) {
	bus := newTestBus(t, Config{BufferSize: 2, Policy: Disconnect})
	slow, _ := bus.Subscribe("p")
	fast, _ := bus.Subscribe("p")

	bus.Publish("p", ev(1))
	bus.Publish("p", ev(2))
	require.Len(t, drain(fast), 2)
	bus.Publish("p", ev(3))

	assert.True(t, slow.Overflowed())
	assert.Equal(t, []Event{ev(1), ev(2)}, drain(slow))
	_, open := <-slow.Events()
	assert.False(t, open)

	assert.Equal(t, []Event{ev(3)}, drain(fast))
	stats := bus.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, int64(1), stats.Disconnects)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(DefaultConfig(), zap.NewNop())
	sub, _ := bus.Subscribe("p")

	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	_, err := bus.Subscribe("p")
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.NotPanics(t, func() { bus.Publish("p", ev(1)) })
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("disconnect")
	require.NoError(t, err)
	assert.Equal(t, Disconnect, p)

	_, err = ParseOverflowPolicy("block")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	e, err := New(ChatResponseDeleted, Deleted{ID: "chr_1", PromptID: "chp_1"})
	require.NoError(t, err)
	assert.Equal(t, ChatResponseDeleted, e.Kind)
	assert.JSONEq(t, `{"id":"chr_1","prompt_id":"chp_1"}`, e.Data)

	e, err = New(ChatPromptDeleted, Deleted{ID: "chp_1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"chp_1"}`, e.Data)

	_, err = New(ChatPromptCreated, make(chan int))
	assert.Error(t, err)
}
