package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/chessrelay/internal/game/room"
)

func newPresence(t *testing.T) (*Presence, *room.Store, *Registry) {
	t.Helper()
	store := room.NewStore()
	reg := NewRegistry(16)
	return NewPresence(store, reg), store, reg
}

func register(t *testing.T, reg *Registry, ids ...ConnID) {
	t.Helper()
	for _, id := range ids {
		_, err := reg.Register(id)
		require.NoError(t, err)
	}
}

func TestAdmit_SeatsWhiteThenBlackThenSpectator(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1", "c2", "c3")
	id := store.Create().ID

	res, err := p.Admit(id, "Alice", "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, SeatedAsPlayer, res.Kind)
	assert.Equal(t, room.White, res.Color)
	assert.Equal(t, room.Waiting, res.Room.Status)

	res, err = p.Admit(id, "Bob", "c2", nil)
	require.NoError(t, err)
	assert.Equal(t, SeatedAsPlayer, res.Kind)
	assert.Equal(t, room.Black, res.Color)
	assert.Equal(t, room.Playing, res.Room.Status)

	res, err = p.Admit(id, "Carol", "c3", nil)
	require.NoError(t, err)
	assert.Equal(t, Spectator, res.Kind)
	assert.Empty(t, res.Color)
	assert.Len(t, res.Room.Players, 2)

	assert.Equal(t, []ConnID{"c1", "c2", "c3"}, reg.Members(id))
}

func TestAdmit_Rejoin(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1", "c2", "c3")
	id := store.Create().ID
	_, _ = p.Admit(id, "Alice", "c1", nil)
	_, _ = p.Admit(id, "Bob", "c2", nil)

	res, err := p.Admit(id, "Alice", "c3", nil)
	require.NoError(t, err)
	assert.Equal(t, Rejoined, res.Kind)
	assert.Equal(t, room.White, res.Color)
	assert.Len(t, res.Room.Players, 2)

	color, ok := seatOf(t, store, id, "c3")
	require.True(t, ok)
	assert.Equal(t, room.White, color)
	_, ok = seatOf(t, store, id, "c1")
	assert.False(t, ok, "the old connection no longer holds the seat")
}

func TestAdmit_RejoinIsCaseSensitive(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1", "c2")
	id := store.Create().ID
	_, _ = p.Admit(id, "Alice", "c1", nil)

	res, err := p.Admit(id, "alice", "c2", nil)
	require.NoError(t, err)
	assert.Equal(t, SeatedAsPlayer, res.Kind)
	assert.Equal(t, room.Black, res.Color)
}

func TestAdmit_DuplicateNameMatchesFirstSeat(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1", "c2", "c3")
	id := store.Create().ID
	_, _ = p.Admit(id, "Sam", "c1", nil)
	// the second "Sam" rejoins the white seat rather than taking black
	res, _ := p.Admit(id, "Sam", "c2", nil)
	assert.Equal(t, Rejoined, res.Kind)
	assert.Equal(t, room.White, res.Color)
	assert.Len(t, res.Room.Players, 1)
}

func TestAdmit_NotFound(t *testing.T) {
	p, _, reg := newPresence(t)
	register(t, reg, "c1")

	called := false
	_, err := p.Admit("missing", "Alice", "c1", func(AdmitResult) { called = true })
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.False(t, called)
	assert.Empty(t, reg.Unregister("c1"))
}

func TestAdmit_UnknownConnDoesNotMutate(t *testing.T) {
	p, store, _ := newPresence(t)
	id := store.Create().ID

	_, err := p.Admit(id, "Alice", "ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownConn)
	snap, _ := store.Get(id)
	assert.Empty(t, snap.Players)
}

func TestAdmit_AnnounceRunsWithResult(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1")
	id := store.Create().ID

	var got AdmitResult
	_, err := p.Admit(id, "Alice", "c1", func(res AdmitResult) { got = res })
	require.NoError(t, err)
	assert.Equal(t, SeatedAsPlayer, got.Kind)
	assert.Equal(t, "Alice", got.Room.Players[0].Name)
}

// seatOf resolves conn's seat in roomID the way the router does.
func seatOf(t *testing.T, store *room.Store, roomID string, conn ConnID) (color room.Color, ok bool) {
	t.Helper()
	require.NoError(t, store.Update(roomID, func(r *room.Room) error {
		color, ok = SeatIn(r, conn)
		return nil
	}))
	return color, ok
}

func TestSeatIn_Spectator(t *testing.T) {
	p, store, reg := newPresence(t)
	register(t, reg, "c1", "c2", "c3")
	id := store.Create().ID
	_, _ = p.Admit(id, "Alice", "c1", nil)
	_, _ = p.Admit(id, "Bob", "c2", nil)
	_, _ = p.Admit(id, "Carol", "c3", nil)

	_, ok := seatOf(t, store, id, "c3")
	assert.False(t, ok)
	color, ok := seatOf(t, store, id, "c2")
	require.True(t, ok)
	assert.Equal(t, room.Black, color)
}

func TestAdmitKindString(t *testing.T) {
	assert.Equal(t, "rejoined", Rejoined.String())
	assert.Equal(t, "seated", SeatedAsPlayer.String())
	assert.Equal(t, "spectator", Spectator.String())
	assert.Equal(t, "unknown", AdmitKind(0).String())
}

// Property-based tests

func TestPropertyAdmit_NeverMoreThanTwoPlayers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := room.NewStore()
		reg := NewRegistry(16)
		p := NewPresence(store, reg)
		id := store.Create().ID

		names := rapid.SliceOfN(rapid.SampledFrom([]string{"Alice", "Bob", "Carol", "Dave"}), 1, 20).Draw(t, "names")
		firstColor := map[string]room.Color{}
		for i, name := range names {
			conn := ConnID(fmt.Sprintf("c%d", i))
			_, _ = reg.Register(conn)
			res, err := p.Admit(id, name, conn, nil)
			if err != nil {
				t.Fatalf("admit: %v", err)
			}
			if len(res.Room.Players) > room.MaxPlayers {
				t.Fatalf("%d players", len(res.Room.Players))
			}
			if res.Kind == Spectator {
				continue
			}
			if prev, seen := firstColor[name]; seen && prev != res.Color {
				t.Fatalf("%s changed color from %s to %s", name, prev, res.Color)
			}
			firstColor[name] = res.Color
		}
	})
}
