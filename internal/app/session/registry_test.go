package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	s1, created := r.GetOrCreate("room", func() *Session { return &Session{roomID: "room"} })
	require.True(t, created)
	require.NotNil(t, s1)

	s2, created := r.GetOrCreate("room", func() *Session {
		t.Fatal("factory must not run for an existing room")
		return nil
	})
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentGetOrCreateSingleInstance(t *testing.T) {
	r := NewRegistry()

	var factoryCalls int32
	results := make([]*Session, 32)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := r.GetOrCreate("room", func() *Session {
				atomic.AddInt32(&factoryCalls, 1)
				return &Session{roomID: "room"}
			})
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), factoryCalls)
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestRegistry_RemoveChecksInstance(t *testing.T) {
	r := NewRegistry()
	old := &Session{roomID: "room"}
	r.GetOrCreate("room", func() *Session { return old })

	r.Remove("room", old)
	assert.Nil(t, r.Get("room"))

	// A stale teardown must not evict the successor session.
	successor := &Session{roomID: "room"}
	r.GetOrCreate("room", func() *Session { return successor })
	r.Remove("room", old)
	assert.Same(t, successor, r.Get("room"))
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("room-%d", i)
		r.GetOrCreate(id, func() *Session { return &Session{roomID: id} })
	}
	assert.Len(t, r.All(), 3)
	assert.Equal(t, 3, r.Len())
}
