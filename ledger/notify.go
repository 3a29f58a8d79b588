package ledger

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// NOTIFIER - Fan-out of "the store changed" signals
// =============================================================================

// Notifier broadcasts change signals to subscribers. Signals coalesce:
// a subscriber that has not consumed the previous signal gets no second one.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe returns a signal channel and a cancel func releasing it.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

// Notify never blocks.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// =============================================================================
// WATCH - Live read model over a loader
// =============================================================================

// Watch emits load's result once immediately and again after every change
// signal from n. Slow consumers only see the latest value. The channel is
// closed when ctx is done. Load failures are logged and skipped.
func Watch[T any](ctx context.Context, n *Notifier, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T)
	sig, cancel := n.Subscribe()

	go func() {
		defer close(out)
		defer cancel()

		var (
			latest  T
			pending bool
		)
		refresh := func() {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).Warn("watch: reload failed")
				}
				return
			}
			latest, pending = v, true
		}

		refresh()
		for {
			var send chan<- T
			if pending {
				send = out
			}
			select {
			case <-ctx.Done():
				return
			case <-sig:
				refresh()
			case send <- latest:
				pending = false
			}
		}
	}()

	return out
}
