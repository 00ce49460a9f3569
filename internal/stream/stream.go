// Package stream is a small broadcast primitive: many subscribers, buffered
// channels, non-blocking publish. Slow subscribers drop events rather than
// stalling the sync loop.
package stream

import "sync"

const defaultBufferSize = 16

type Stream[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

func New[T any]() *Stream[T] {
	return &Stream[T]{subs: make([]chan T, 0)}
}

// Subscribe returns a channel receiving all values published after this call.
func (s *Stream[T]) Subscribe() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, defaultBufferSize)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Stream[T]) Unsubscribe(ch <-chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub == ch {
			close(sub)
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
}

func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	for _, sub := range s.subs {
		select {
		case sub <- v:
		default:
			// subscriber buffer full, drop
		}
	}
}

func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		close(sub)
	}
	s.subs = nil
}
