package scanner

import (
	"sync"
	"sync/atomic"
)

// Shutdown is the shared stop flag. Tasks check it at chunk boundaries only,
// so in-flight chain calls finish normally.
type Shutdown struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewShutdown creates an unset flag.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Trigger sets the flag. Safe to call more than once.
func (s *Shutdown) Trigger() {
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
	})
}

// IsSet reports whether shutdown was requested.
func (s *Shutdown) IsSet() bool {
	return s.set.Load()
}

// Done is closed when shutdown is requested.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}
