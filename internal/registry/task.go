package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hamzazf/shieldwallet/internal/wallet"
)

// Op is a unit of work run against one network's wallet.
type Op func(ctx context.Context, w *wallet.Wallet) error

// Task is a handle on an operation started with Spawn. Cancellation is
// observed by the wallet at step boundaries only.
type Task struct {
	ID      string
	Network Network

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Wait blocks until the task finishes or ctx is done, and returns the task
// error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the task to stop at its next step boundary.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task error once finished, nil before.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Spawn runs op against the wallet of n in its own goroutine. The wallet is
// resolved before Spawn returns, so an empty slot fails immediately.
func (r *Registry) Spawn(ctx context.Context, n Network, op Op) (*Task, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		ID:      uuid.NewString(),
		Network: n,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	log := r.log.With().Str("task", t.ID).Str("network", n.String()).Logger()
	log.Debug().Msg("task started")
	go func() {
		defer close(t.done)
		defer cancel()
		err := op(ctx, w)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Msg("task failed")
			return
		}
		log.Debug().Msg("task finished")
	}()
	return t, nil
}
