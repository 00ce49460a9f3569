package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_PublishSubscribe(t *testing.T) {
	s := New[string]()
	defer s.Close()

	ch1 := s.Subscribe()
	ch2 := s.Subscribe()

	s.Publish("hello")

	assert.Equal(t, "hello", <-ch1)
	assert.Equal(t, "hello", <-ch2)
}

func TestStream_Unsubscribe(t *testing.T) {
	s := New[int]()
	defer s.Close()

	ch := s.Subscribe()
	s.Unsubscribe(ch)

	// channel is closed on unsubscribe
	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	s.Publish(42)
}

func TestStream_SlowSubscriberDropsEvents(t *testing.T) {
	s := New[int]()
	defer s.Close()

	ch := s.Subscribe()
	// overflow the buffer; the publisher must not block
	for i := 0; i < defaultBufferSize*2; i++ {
		s.Publish(i)
	}

	received := 0
	for len(ch) > 0 {
		<-ch
		received++
	}
	assert.Equal(t, defaultBufferSize, received)
}

func TestStream_Close(t *testing.T) {
	s := New[int]()
	ch := s.Subscribe()

	s.Close()
	_, open := <-ch
	assert.False(t, open)

	// operations on a closed stream are no-ops
	s.Publish(1)
	s.Close()
	late := s.Subscribe()
	_, open = <-late
	require.False(t, open)
}
