package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drain(e *Entity) []string {
	var out []string
	for {
		select {
		case data, ok := <-e.Events():
			if !ok {
				return out
			}
			out = append(out, string(data))
		default:
			return out
		}
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(4)
	_, err := r.Register("c1")
	require.NoError(t, err)
	_, err = r.Register("c1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_SubscribeUnknown(t *testing.T) {
	r := NewRegistry(4)
	assert.ErrorIs(t, r.Subscribe("room", "ghost"), ErrUnknownConn)
	assert.Empty(t, r.Members("room"))
}

func TestRegistry_MembersAndSubscriptions(t *testing.T) {
	r := NewRegistry(4)
	_, _ = r.Register("b")
	_, _ = r.Register("a")
	require.NoError(t, r.Subscribe("room1", "b"))
	require.NoError(t, r.Subscribe("room1", "a"))
	require.NoError(t, r.Subscribe("room1", "a"))
	require.NoError(t, r.Subscribe("room2", "a"))

	assert.Equal(t, []ConnID{"a", "b"}, r.Members("room1"))
	assert.Equal(t, []string{"room1", "room2"}, r.Unregister("a"))
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(4)
	e, _ := r.Register("c1")
	_, _ = r.Register("c2")
	_ = r.Subscribe("room2", "c1")
	_ = r.Subscribe("room1", "c1")
	_ = r.Subscribe("room1", "c2")

	rooms := r.Unregister("c1")
	assert.Equal(t, []string{"room1", "room2"}, rooms)
	assert.True(t, e.IsClosed())
	assert.Equal(t, []ConnID{"c2"}, r.Members("room1"))
	assert.Empty(t, r.Members("room2"))
	assert.Equal(t, 1, r.Count())
	assert.Nil(t, r.Unregister("c1"))
}

func TestRegistry_PushUnknown(t *testing.T) {
	r := NewRegistry(4)
	assert.ErrorIs(t, r.Push("ghost", []byte("x")), ErrUnknownConn)
}

func TestRegistry_PushFullClosesEntity(t *testing.T) {
	r := NewRegistry(1)
	e, _ := r.Register("slow")
	require.NoError(t, r.Push("slow", []byte("1")))
	assert.ErrorIs(t, r.Push("slow", []byte("2")), ErrBufferFull)
	assert.True(t, e.IsClosed())
	assert.True(t, e.Evicted())
}

func TestRegistry_UnregisterIsNotEviction(t *testing.T) {
	r := NewRegistry(4)
	e, _ := r.Register("c1")
	r.Unregister("c1")
	assert.True(t, e.IsClosed())
	assert.False(t, e.Evicted())
}

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry(4)
	a, _ := r.Register("a")
	b, _ := r.Register("b")
	c, _ := r.Register("c")
	_ = r.Subscribe("room", "a")
	_ = r.Subscribe("room", "b")
	_ = r.Subscribe("other", "c")

	failed := r.Broadcast("room", "a", []byte("hi"))
	assert.Empty(t, failed)
	assert.Empty(t, drain(a))
	assert.Equal(t, []string{"hi"}, drain(b))
	assert.Empty(t, drain(c))

	failed = r.Broadcast("room", "", []byte("all"))
	assert.Empty(t, failed)
	assert.Equal(t, []string{"all"}, drain(a))
	assert.Equal(t, []string{"all"}, drain(b))
}

func TestRegistry_BroadcastReportsFailures(t *testing.T) {
	r := NewRegistry(4)
	a, _ := r.Register("a")
	_, _ = r.Register("b")
	_ = r.Subscribe("room", "a")
	_ = r.Subscribe("room", "b")
	_ = a.Close()

	failed := r.Broadcast("room", "", []byte("x"))
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed["a"], ErrEntityClosed)
}

func TestRegistry_DropRoom(t *testing.T) {
	r := NewRegistry(4)
	_, _ = r.Register("a")
	_ = r.Subscribe("room1", "a")
	_ = r.Subscribe("room2", "a")

	r.DropRoom("room1")
	assert.Empty(t, r.Members("room1"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"room2"}, r.Unregister("a"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(256)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ConnID(fmt.Sprintf("c%d", i))
			_, _ = r.Register(id)
			_ = r.Subscribe("room", id)
			r.Broadcast("room", id, []byte("x"))
			_ = r.Unregister(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Members("room"))
}

func TestPropertyRegistry_MembersMatchSubscriptions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		r := NewRegistry(4)
		subscribed := map[ConnID]bool{}
		for i := 0; i < n; i++ {
			id := ConnID(fmt.Sprintf("c%02d", i))
			_, _ = r.Register(id)
			if rapid.Bool().Draw(t, "subscribe") {
				_ = r.Subscribe("room", id)
				subscribed[id] = true
			}
		}
		members := r.Members("room")
		if len(members) != len(subscribed) {
			t.Fatalf("got %d members, want %d", len(members), len(subscribed))
		}
		for _, id := range members {
			if !subscribed[id] {
				t.Fatalf("unexpected member %s", id)
			}
		}
	})
}
