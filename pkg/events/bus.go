package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fact is one immutable, structured notification. Exactly one Fact is
// published per state transition and none is ever amended afterwards.
type Fact struct {
	ID      string `json:"id"`   // unique per fact
	Kind    string `json:"kind"` // e.g. "order_placed"
	Payload any    `json:"payload"`
}

// Bus fans facts out to subscribers. Delivery is best-effort per subscriber:
// a full buffer drops the fact for that subscriber rather than blocking the
// publishing operation (the same policy as the websocket hub it feeds).
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Fact]struct{}
	log  *zap.SugaredLogger
}

func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{
		subs: make(map[chan Fact]struct{}),
		log:  log,
	}
}

// Subscribe registers a buffered subscription. The returned cancel func
// removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Fact, func()) {
	ch := make(chan Fact, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish wraps the payload into a Fact and delivers it to every subscriber.
func (b *Bus) Publish(kind string, payload any) {
	fact := Fact{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- fact:
		default:
			if b.log != nil {
				b.log.Warnw("event_dropped", "kind", kind, "id", fact.ID)
			}
		}
	}
}
