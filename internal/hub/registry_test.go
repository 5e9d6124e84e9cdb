package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestSession(userID string) *Session {
	// No connection; tests exercise buffering only.
	return &Session{
		ID:     userID + "-session",
		UserID: userID,
		out:    make(chan []byte, 4),
		done:   make(chan struct{}),
		joined: make(map[int64]struct{}),
	}
}

func TestRegistryJoinLeave(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("a")
	b := newTestSession("b")

	r.Join("app:acme", a)
	r.Join("app:acme", b)
	assert.Equal(t, 2, r.Count("app:acme"))

	r.Leave("app:acme", a)
	assert.Equal(t, 1, r.Count("app:acme"))

	// Leaving a group twice or a group never joined is a no-op.
	r.Leave("app:acme", a)
	r.Leave("app:other", a)
	assert.Equal(t, 1, r.Count("app:acme"))
}

func TestRegistryLeaveAll(t *testing.T) {
	r := NewRegistry()
	s := newTestSession("a")

	r.Join("app:acme", s)
	r.Join("user:a", s)
	r.Join("conversation:1", s)

	r.LeaveAll(s)
	assert.Zero(t, r.Count("app:acme"))
	assert.Zero(t, r.Count("user:a"))
	assert.Zero(t, r.Count("conversation:1"))
}

func TestRegistryReapsEmptyGroups(t *testing.T) {
	r := NewRegistry()
	s := newTestSession("a")

	r.Join("conversation:1", s)
	r.Leave("conversation:1", s)

	r.mu.RLock()
	_, ok := r.groups["conversation:1"]
	r.mu.RUnlock()
	assert.False(t, ok, "empty group must be dropped from the index")

	// A dropped group name is usable again.
	r.Join("conversation:1", s)
	assert.Equal(t, 1, r.Count("conversation:1"))
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		s := newTestSession(string(rune('a' + i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Join("conversation:1", s)
				r.Join("app:acme", s)
				r.Broadcast("conversation:1", []byte("x"), s)
				r.Leave("conversation:1", s)
				r.LeaveAll(s)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, r.Count("conversation:1"))
	assert.Zero(t, r.Count("app:acme"))
}

func TestRegistryBroadcast(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("a")
	b := newTestSession("b")
	r.Join("conversation:1", a)
	r.Join("conversation:1", b)

	sent, dropped := r.Broadcast("conversation:1", []byte("hello"), nil)
	assert.Equal(t, 2, sent)
	assert.Zero(t, dropped)

	select {
	case data := <-a.out:
		assert.Equal(t, "hello", string(data))
	case <-time.After(time.Second):
		t.Fatal("session a received nothing")
	}
}

func TestRegistryBroadcastExcept(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("a")
	b := newTestSession("b")
	r.Join("conversation:1", a)
	r.Join("conversation:1", b)

	sent, _ := r.Broadcast("conversation:1", []byte("hello"), a)
	assert.Equal(t, 1, sent)
	assert.Empty(t, a.out)
}

func TestRegistryBroadcastDropsWhenBufferFull(t *testing.T) {
	r := NewRegistry()
	s := newTestSession("a")
	r.Join("conversation:1", s)

	for i := 0; i < cap(s.out); i++ {
		assert.True(t, s.enqueue([]byte("fill")))
	}

	sent, dropped := r.Broadcast("conversation:1", []byte("overflow"), nil)
	assert.Zero(t, sent)
	assert.Equal(t, 1, dropped)
}

func TestSessionEnqueueAfterClose(t *testing.T) {
	s := newTestSession("a")
	close(s.done)
	assert.False(t, s.enqueue([]byte("late")))
}

func TestSessionJoinedTracking(t *testing.T) {
	s := newTestSession("a")
	s.markJoined(1)
	s.markJoined(2)
	s.markLeft(1)
	assert.ElementsMatch(t, []int64{2}, s.joinedConversations())
}
