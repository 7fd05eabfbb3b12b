package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
)

// cascadeSink touches belongs_to parents declared with touch: true whenever
// a child is touched.
//
// Inside a delay scope the parent touch is queued and picked up by the next
// flush pass. Outside a scope it applies immediately, recursing up the
// hierarchy; a chain stops at a row it already visited so self-referencing
// data cannot loop.
type cascadeSink struct {
	runner *Runner

	mu   sync.Mutex
	errs []error
}

type visitedKey struct{}

func (c *cascadeSink) OnTouched(ctx context.Context, rec engine.Record) {
	row, ok := rec.(*ir.Row)
	if !ok {
		return
	}
	rt, ok := c.runner.store.Registry().Lookup(row.Type)
	if !ok {
		return
	}
	child := RowRef{Type: row.Type, ID: row.ID}

	immediate := !c.runner.engine.IsDelayActive(ctx)
	if immediate {
		visited, _ := ctx.Value(visitedKey{}).(map[string]bool)
		if visited == nil {
			visited = make(map[string]bool)
			ctx = context.WithValue(ctx, visitedKey{}, visited)
		}
		visited[child.key()] = true
	}

	for _, link := range rt.BelongsTo {
		if !link.Touch {
			continue
		}
		parentID, ok := row.Ref(link.ForeignKey)
		if !ok || parentID == "" {
			continue
		}
		parent := RowRef{Type: link.Type, ID: parentID}

		if immediate {
			if visited, _ := ctx.Value(visitedKey{}).(map[string]bool); visited[parent.key()] {
				continue
			}
		}

		prow, err := c.runner.row(ctx, parent)
		if err != nil {
			c.fail(fmt.Errorf("cascade %s -> %s: %w", child, parent, err))
			continue
		}
		if err := c.runner.engine.Touch(ctx, prow); err != nil {
			c.fail(fmt.Errorf("cascade %s -> %s: %w", child, parent, err))
		}
	}
}

func (c *cascadeSink) OnCommitted(context.Context, engine.Record) {}

func (c *cascadeSink) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *cascadeSink) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}

func (c *cascadeSink) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = nil
}
