package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/voiceflow"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
)

func queuedTurn(text string) whatsapp.UserTurn {
	return whatsapp.UserTurn{UserID: "u1", Action: voiceflow.TextAction(text)}
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(8)
	for _, text := range []string{"one", "two", "three"} {
		if err := q.Enqueue(queuedTurn(text)); err != nil {
			t.Fatalf("Enqueue(%q): %v", text, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	for _, want := range []string{"one", "two", "three"} {
		turn, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got := turn.Action.Payload.(string); got != want {
			t.Errorf("Dequeue = %q, want %q", got, want)
		}
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(2)
	if err := q.Enqueue(queuedTurn("one")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(queuedTurn("two")); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(queuedTurn("three")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestMemoryQueueDequeueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
