package conversation

import (
	"context"
	"errors"

	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
)

// ErrQueueFull is returned when the delivery queue is at capacity. The turn
// is dropped; WhatsApp has already been acknowledged at that point.
var ErrQueueFull = errors.New("conversation: delivery queue full")

// MemoryQueue is a bounded FIFO of normalized user turns backed by a
// buffered channel. Contents are lost on restart.
type MemoryQueue struct {
	ch chan whatsapp.UserTurn
}

// NewMemoryQueue creates a MemoryQueue with the provided capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{
		ch: make(chan whatsapp.UserTurn, capacity),
	}
}

// Enqueue appends a turn without blocking, failing when the queue is full.
func (q *MemoryQueue) Enqueue(turn whatsapp.UserTurn) error {
	select {
	case q.ch <- turn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a turn is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (whatsapp.UserTurn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return whatsapp.UserTurn{}, ctx.Err()
	case turn := <-q.ch:
		return turn, nil
	}
}

// Len reports the current queue depth.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
