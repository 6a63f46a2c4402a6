package events

import (
	"context"

	"ticket-resale/utils"
)

type guarded struct {
	next Publisher
	cb   *utils.CircuitBreaker
}

// Guard wraps p so that a failing downstream stops being called once the
// breaker trips.
func Guard(p Publisher, cb *utils.CircuitBreaker) Publisher {
	return &guarded{next: p, cb: cb}
}

func (g *guarded) Publish(ctx context.Context, e Event) error {
	_, err := g.cb.Execute(ctx, func() (any, error) {
		return nil, g.next.Publish(ctx, e)
	})
	return err
}
