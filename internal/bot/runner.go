package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mnemo/internal/logging"
)

// poller is the transport slice the runner reads from.
type poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Runner drives the long-poll loop and fans updates out to the handler.
// Updates for one user feed a per-user FIFO queue drained by a single
// worker, so same-user messages are handled in arrival order; distinct
// users proceed concurrently.
type Runner struct {
	tg          poller
	handler     *Handler
	pollTimeout time.Duration
	logger      *logging.Logger

	mu      sync.Mutex
	pending map[string][]Update
}

// NewRunner wires the poll loop.
func NewRunner(tg poller, handler *Handler, pollTimeout time.Duration) *Runner {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Runner{
		tg:          tg,
		handler:     handler,
		pollTimeout: pollTimeout,
		logger:      logging.NewComponentLogger("runner"),
		pending:     make(map[string][]Update),
	}
}

// Run polls until the context is cancelled. Poll errors back off and the
// loop continues; only cancellation ends it.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			// Drain in-flight updates before reporting shutdown.
			_ = group.Wait()
			return ctx.Err()
		default:
		}

		updates, err := r.tg.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Warn("Polling failed, backing off: %v", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			r.enqueue(ctx, group, update)
		}
	}
}

// enqueue appends the update to its user's queue and starts a drain
// worker if none is running for that user. The worker exits only after
// observing an empty queue under the lock, so a queue with entries always
// has exactly one worker.
func (r *Runner) enqueue(ctx context.Context, group *errgroup.Group, update Update) {
	key := updateKey(update)

	r.mu.Lock()
	queue := r.pending[key]
	r.pending[key] = append(queue, update)
	workerRunning := len(queue) > 0
	r.mu.Unlock()

	if workerRunning {
		return
	}
	group.Go(func() error {
		for {
			r.mu.Lock()
			queue := r.pending[key]
			if len(queue) == 0 {
				delete(r.pending, key)
				r.mu.Unlock()
				return nil
			}
			next := queue[0]
			r.pending[key] = queue[1:]
			r.mu.Unlock()

			r.handler.HandleUpdate(ctx, next)
		}
	})
}

// updateKey is the per-user sequencing key: the chat the update belongs
// to, or the update ID for anything without one.
func updateKey(update Update) string {
	switch {
	case update.Message != nil:
		return strconv.FormatInt(update.Message.Chat.ID, 10)
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return strconv.FormatInt(update.CallbackQuery.Message.Chat.ID, 10)
	default:
		return "update-" + strconv.FormatInt(update.UpdateID, 10)
	}
}
