package voice

import (
	"context"
	"sync"
)

// pending is a single-value subscription. It keeps the first event that
// matches and unsubscribes once it is waited on or cancelled.
type pending[E any] struct {
	events      chan E
	closed      <-chan struct{}
	unsubscribe func()
	once        sync.Once
}

func listen[E any](subscribe func(func(E)) func(), closed <-chan struct{}, match func(E) bool) *pending[E] {
	p := &pending[E]{
		events: make(chan E, 1),
		closed: closed,
	}
	p.unsubscribe = subscribe(func(e E) {
		if !match(e) {
			return
		}
		select {
		case p.events <- e:
		default:
		}
	})
	return p
}

// wait blocks for the first matching event. It returns ErrEventStreamClosed
// if the bus ends first, or the context error.
func (p *pending[E]) wait(ctx context.Context) (E, error) {
	defer p.cancel()

	var zero E
	select {
	case e := <-p.events:
		return e, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.closed:
		// An event delivered right before the bus closed still counts.
		select {
		case e := <-p.events:
			return e, nil
		default:
		}
		return zero, ErrEventStreamClosed
	}
}

func (p *pending[E]) cancel() {
	p.once.Do(p.unsubscribe)
}
