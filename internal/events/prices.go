package events

import (
	"sync"
	"time"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// PriceTick is a streamed price rendered for web consumers.
// Uses string fields to avoid float precision issues in JSON clients.
type PriceTick struct {
	Timestamp time.Time `json:"ts"`
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
}

func TickFromUpdate(u domain.PriceUpdate) PriceTick {
	return PriceTick{Timestamp: u.Timestamp, Symbol: u.Symbol, Price: u.Price.String()}
}

// PriceBroadcaster fans out ticks to all subscribers via buffered channels.
type PriceBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan PriceTick]struct{}
	buffer int
}

// NewPriceBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewPriceBroadcaster(buffer int) *PriceBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &PriceBroadcaster{
		subs:   make(map[chan PriceTick]struct{}),
		buffer: buffer,
	}
}

// Publish sends the tick to all subscribers, dropping if a reader is slow.
func (b *PriceBroadcaster) Publish(t PriceTick) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- t:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives ticks until Unsubscribe is called.
func (b *PriceBroadcaster) Subscribe() chan PriceTick {
	ch := make(chan PriceTick, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *PriceBroadcaster) Unsubscribe(ch chan PriceTick) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *PriceBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
