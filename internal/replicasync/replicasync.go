// Package replicasync propagates offset advancement across shards: after
// the coordinator advances its loaded offset, it broadcasts the new value
// to every other shard. Shards never catch up eagerly on a broadcast; they
// only use it as a hint for status reporting, and do their real catch-up
// lazily the next time a local read calls ReadSync.
package replicasync

import "sync"

// Hub is a tiny non-blocking pub/sub keyed by shard ID. Each subscriber
// channel is single-slot: a slow shard only ever needs to know the current
// tail, not every intermediate value a fast writer produced while it wasn't
// looking, so a pending value is overwritten rather than queued.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan int64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan int64)}
}

// Subscribe registers shardID and returns the channel it will receive
// broadcast offsets on. Subscribing the same shardID twice replaces the
// previous channel.
func (h *Hub) Subscribe(shardID int) <-chan int64 {
	ch := make(chan int64, 1)
	h.mu.Lock()
	h.subs[shardID] = ch
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes shardID. Safe to call more than once.
func (h *Hub) Unsubscribe(shardID int) {
	h.mu.Lock()
	delete(h.subs, shardID)
	h.mu.Unlock()
}

// Broadcast sends offset to every subscriber without blocking. If a
// subscriber hasn't drained its previous value yet, Broadcast replaces it
// in place rather than queuing behind it.
func (h *Hub) Broadcast(offset int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- offset:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- offset:
		default:
		}
	}
}
