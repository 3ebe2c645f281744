package events

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBus(zap.NewNop().Sugar())

	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	b.Publish("order_placed", map[string]uint64{"orderId": 42})

	for i, ch := range []<-chan Fact{ch1, ch2} {
		select {
		case fact := <-ch:
			if fact.Kind != "order_placed" {
				t.Errorf("subscriber %d: kind = %s, want order_placed", i, fact.Kind)
			}
			if fact.ID == "" {
				t.Errorf("subscriber %d: empty fact id", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no fact received", i)
		}
	}
}

func TestFactIDsAreUnique(t *testing.T) {
	b := NewBus(zap.NewNop().Sugar())
	ch, cancel := b.Subscribe(8)
	defer cancel()

	b.Publish("a", nil)
	b.Publish("a", nil)

	f1 := <-ch
	f2 := <-ch
	if f1.ID == f2.ID {
		t.Errorf("duplicate fact id %s", f1.ID)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus(zap.NewNop().Sugar())
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		// The buffer holds one fact; the rest drop instead of blocking.
		for i := 0; i < 10; i++ {
			b.Publish("burst", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}

	if fact := <-ch; fact.Kind != "burst" {
		t.Errorf("kind = %s, want burst", fact.Kind)
	}
}

func TestCancelledSubscriptionStopsDelivery(t *testing.T) {
	b := NewBus(zap.NewNop().Sugar())
	ch, cancel := b.Subscribe(4)

	cancel()
	// Cancel is idempotent.
	cancel()

	b.Publish("after_cancel", nil)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}
