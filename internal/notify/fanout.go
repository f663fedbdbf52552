package notify

import (
	"context"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

// Fanout forwards each notice to every sink in order.
type Fanout []surgical.NoticeSink

func (f Fanout) Notify(ctx context.Context, n surgical.Notice) {
	for _, sink := range f {
		sink.Notify(ctx, n)
	}
}
