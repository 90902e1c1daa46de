package conversation

import (
	"context"
	"sync"

	observemetrics "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/observability/metrics"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

type turnHandler interface {
	HandleTurn(ctx context.Context, turn whatsapp.UserTurn)
}

// Worker drains the delivery queue and dispatches turns to the
// orchestrator. At most maxInFlight turns run concurrently, and turns from
// the same user are serialized so replies keep their order.
type Worker struct {
	queue       *MemoryQueue
	handler     turnHandler
	logger      *logging.Logger
	metrics     *observemetrics.BridgeMetrics
	maxInFlight int

	userLocks sync.Map // user id -> *sync.Mutex
	wg        sync.WaitGroup
}

// WorkerConfig wires the worker's collaborators.
type WorkerConfig struct {
	Queue       *MemoryQueue
	Handler     turnHandler
	Logger      *logging.Logger
	Metrics     *observemetrics.BridgeMetrics
	MaxInFlight int
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 10
	}
	return &Worker{
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxInFlight: cfg.MaxInFlight,
	}
}

// Start launches the dispatch loop. Cancel ctx to stop; Wait blocks until
// in-flight turns have drained.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	sem := make(chan struct{}, w.maxInFlight)
	for {
		turn, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Info("worker stopping", "reason", err)
			return
		}
		w.metrics.SetQueueDepth(w.queue.Len())

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			w.logger.Info("worker stopping", "reason", ctx.Err())
			return
		}

		w.wg.Add(1)
		go func(turn whatsapp.UserTurn) {
			defer w.wg.Done()
			defer func() { <-sem }()

			mu := w.lockFor(turn.UserID)
			mu.Lock()
			defer mu.Unlock()

			w.handler.HandleTurn(ctx, turn)
		}(turn)
	}
}

// Wait blocks until the dispatch loop and all in-flight turns finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) lockFor(userID string) *sync.Mutex {
	mu, _ := w.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
