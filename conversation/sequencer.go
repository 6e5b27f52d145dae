package conversation

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sequencer runs submitted functions one at a time per key, in submission
// order. Different keys run concurrently. A key's lane goes away as soon as it
// has nothing queued.
type Sequencer struct {
	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
	log   logrus.FieldLogger
}

type lane struct {
	queue []func()
}

func NewSequencer(log logrus.FieldLogger) *Sequencer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sequencer{lanes: map[string]*lane{}, log: log}
}

func (s *Sequencer) Submit(key string, fn func()) {
	s.mu.Lock()
	if l, ok := s.lanes[key]; ok {
		l.queue = append(l.queue, fn)
		s.mu.Unlock()
		return
	}
	l := &lane{queue: []func(){fn}}
	s.lanes[key] = l
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(key, l)
}

// Run submits fn under key and returns its result. fn receives ctx without
// its cancellation: once queued it runs to completion even after the caller
// has given up, and it must not touch anything owned by the caller.
func Run[T any](ctx context.Context, s *Sequencer, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	runCtx := context.WithoutCancel(ctx)
	s.Submit(key, func() {
		v, err := fn(runCtx)
		done <- result{v, err}
	})
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Sequencer) drain(key string, l *lane) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(l.queue) == 0 {
			delete(s.lanes, key)
			s.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		s.mu.Unlock()

		s.run(key, fn)
	}
}

func (s *Sequencer) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("key", key).Errorf("sequencer: panic: %v", r)
		}
	}()
	fn()
}

// Lanes is the number of keys with queued or running work.
func (s *Sequencer) Lanes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}

// Wait blocks until every lane has drained.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}
