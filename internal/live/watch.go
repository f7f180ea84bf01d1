package live

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Subscription delivers full snapshots of a query result until cancelled.
type Subscription[T any] struct {
	c      chan T
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Watch delivers fetch's result immediately and again after every change
// signal on topic. Snapshots are re-queried, so each one reflects every
// change committed before its signal.
//
// The subscription ends when ctx is done, Cancel is called, the hub is
// closed or fetch fails; C is then closed and Err reports the fetch error.
func Watch[T any](ctx context.Context, h *Hub, topic string, fetch func(context.Context) (T, error)) (*Subscription[T], error) {
	ctx, cancel := context.WithCancel(ctx)

	// Subscribe before the first fetch so no change is missed in between.
	signals, err := h.subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Subscription[T]{
		c:      make(chan T),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if h.active != nil {
		h.active.Inc()
	}

	go func() {
		defer func() {
			cancel()
			close(s.c)
			close(s.done)
			if h.active != nil {
				h.active.Dec()
			}
		}()

		for {
			snapshot, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.err = err
				}
				return
			}

			select {
			case s.c <- snapshot:
			case <-ctx.Done():
				return
			}

			select {
			case msg, ok := <-signals:
				if !ok {
					return
				}
				msg.Ack()
				drain(signals)
			case <-ctx.Done():
				return
			}
		}
	}()

	return s, nil
}

// drain acknowledges signals that are already queued so that a burst of
// changes results in one re-query.
func drain(signals <-chan *message.Message) {
	for {
		select {
		case msg, ok := <-signals:
			if !ok {
				return
			}
			msg.Ack()
		default:
			return
		}
	}
}

// C returns the snapshot channel.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

// Cancel stops the subscription and waits until it has shut down. No
// snapshot is delivered after Cancel returns.
func (s *Subscription[T]) Cancel() {
	s.cancel()
	<-s.done
}

// Err returns the error that ended the subscription, if any. It is only
// meaningful after C has been closed.
func (s *Subscription[T]) Err() error {
	return s.err
}
