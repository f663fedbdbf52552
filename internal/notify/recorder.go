package notify

import (
	"context"
	"sync"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

// Recorder keeps the most recent notices in memory, oldest first.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	notices []surgical.Notice
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, n surgical.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
	if over := len(r.notices) - r.limit; over > 0 {
		r.notices = append(r.notices[:0:0], r.notices[over:]...)
	}
}

// Recent returns a copy of the recorded notices.
func (r *Recorder) Recent() []surgical.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]surgical.Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
