package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltstream/saltstream/pkg/message"
	"github.com/saltstream/saltstream/pkg/sponge"
)

func committedState(seed byte) *sponge.Spongos {
	s := sponge.New()
	s.Absorb([]byte{seed})
	s.Commit()
	return s
}

func testStoreRoundTrip(t *testing.T, s Store) {
	var id message.MsgId
	id[0] = 1

	_, _, err := s.Lookup(id)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	st := committedState(7)
	info := Info{ContentType: message.ContentTaggedPacket, Topic: "general", SeqNum: 42}
	require.NoError(t, s.Update(id, st, info))

	got, gotInfo, err := s.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, info, gotInfo)

	// Restored state must behave like the original under join.
	a := sponge.New()
	a.Join(st.Fork())
	b := sponge.New()
	b.Join(got)
	assert.True(t, a.Equal(b))

	// Update replaces the previous state.
	st2 := committedState(8)
	require.NoError(t, s.Update(id, st2, Info{SeqNum: 43}))
	_, gotInfo, err = s.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), gotInfo.SeqNum)
}

func TestMemStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemStore())
}

func TestMemStoreRejectsUncommitted(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("pending"))
	err := NewMemStore().Update(message.MsgId{}, s, Info{})
	assert.ErrorIs(t, err, sponge.ErrNotCommitted)
}

func TestMemStoreLookupIsolation(t *testing.T) {
	m := NewMemStore()
	var id message.MsgId
	require.NoError(t, m.Update(id, committedState(1), Info{}))

	got1, _, err := m.Lookup(id)
	require.NoError(t, err)
	got1.Absorb([]byte("local mutation"))
	got1.Commit()

	got2, _, err := m.Lookup(id)
	require.NoError(t, err)
	assert.False(t, got1.Equal(got2), "stored state must not share memory with lookups")
}

func TestSQLiteStore(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	defer db.Close()
	testStoreRoundTrip(t, db)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.db")
	db, err := OpenDB(path)
	require.NoError(t, err)

	var id message.MsgId
	id[3] = 9
	st := committedState(5)
	require.NoError(t, db.Update(id, st, Info{ContentType: message.ContentKeyload, Topic: "t", SeqNum: 1}))
	require.NoError(t, db.Close())

	db2, err := OpenDB(path)
	require.NoError(t, err)
	defer db2.Close()
	got, info, err := db2.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, message.ContentKeyload, info.ContentType)

	a := sponge.New()
	a.Join(st.Fork())
	b := sponge.New()
	b.Join(got)
	assert.True(t, a.Equal(b))
}
