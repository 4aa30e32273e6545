package utils

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("[penne] feed/drain queue is closed")

// FDQueue is a bounded feed/drain queue used to hand items from the
// network loop (the sole producer) to the application loop (the sole
// consumer). Items drained in before Close are still fed out afterwards;
// only then does Feed report ErrClosed.
type FDQueue[T any] struct {
	ctx   context.Context
	close context.CancelFunc
	items chan T
}

func NewFDQueue[T any](limit int) *FDQueue[T] {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FDQueue[T]{
		ctx:   ctx,
		close: cancel,
		items: make(chan T, limit),
	}
}

func (q *FDQueue[T]) Close() error {
	q.close()
	return nil
}

func (q *FDQueue[T]) Size() int {
	return len(q.items)
}

// Drain appends items in order. It blocks while the queue is full and
// fails with ErrClosed once the queue is closed.
func (q *FDQueue[T]) Drain(ctx context.Context, items []T) error {
	for _, item := range items {
		select {
		case q.items <- item:
		case <-q.ctx.Done():
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Feed blocks until at least one item is available, then returns every
// item it can take without blocking further. After Close it first
// returns whatever is still buffered, then ErrClosed.
func (q *FDQueue[T]) Feed(ctx context.Context) (batch []T, err error) {
	select {
	case item := <-q.items:
		batch = append(batch, item)
	case <-q.ctx.Done():
		// let the leftovers out, then report closed
		for {
			select {
			case item := <-q.items:
				batch = append(batch, item)
			default:
				if len(batch) == 0 {
					return nil, ErrClosed
				}
				return batch, nil
			}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case item := <-q.items:
			batch = append(batch, item)
		default:
			return batch, nil
		}
	}
}
