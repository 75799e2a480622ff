package relationship

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(store Store) *Controller {
	c := NewController(store)
	c.backoffBase = time.Millisecond
	return c
}

func members(t *testing.T, s Store, kind Kind, userID string) []string {
	t.Helper()
	rec, err := s.Get(context.Background(), kind, userID)
	require.NoError(t, err)
	return rec.Members
}

func TestControllerScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("send then accept yields symmetric friendship", func(t *testing.T) {
		s := NewMemoryStore()
		c := newTestController(s)

		require.NoError(t, c.Execute(ctx, CommandSend, "alice", "bob"))
		require.NoError(t, c.Execute(ctx, CommandAccept, "bob", "alice"))

		assert.Equal(t, []string{"bob"}, members(t, s, KindFriends, "alice"))
		assert.Equal(t, []string{"alice"}, members(t, s, KindFriends, "bob"))
		assert.Empty(t, members(t, s, KindOutgoing, "alice"))
		assert.Empty(t, members(t, s, KindIncoming, "alice"))
		assert.Empty(t, members(t, s, KindOutgoing, "bob"))
		assert.Empty(t, members(t, s, KindIncoming, "bob"))
	})

	t.Run("repeated send is rejected without state change", func(t *testing.T) {
		s := NewMemoryStore()
		c := newTestController(s)

		require.NoError(t, c.Execute(ctx, CommandSend, "alice", "bob"))
		err := c.Execute(ctx, CommandSend, "alice", "bob")
		require.ErrorIs(t, err, ErrRequestExists)

		assert.Equal(t, []string{"bob"}, members(t, s, KindOutgoing, "alice"))
		assert.Equal(t, []string{"alice"}, members(t, s, KindIncoming, "bob"))
	})

	t.Run("sequential crossed sends end as friends", func(t *testing.T) {
		s := NewMemoryStore()
		c := newTestController(s)

		require.NoError(t, c.Execute(ctx, CommandSend, "alice", "bob"))
		require.NoError(t, c.Execute(ctx, CommandSend, "bob", "alice"))

		assert.Equal(t, []string{"alice"}, members(t, s, KindFriends, "bob"))
		assert.Equal(t, []string{"bob"}, members(t, s, KindFriends, "alice"))
		for _, kind := range []Kind{KindIncoming, KindOutgoing} {
			assert.Empty(t, members(t, s, kind, "alice"))
			assert.Empty(t, members(t, s, kind, "bob"))
		}
	})

	t.Run("cancel clears both sides", func(t *testing.T) {
		s := NewMemoryStore()
		c := newTestController(s)

		require.NoError(t, c.Execute(ctx, CommandSend, "alice", "bob"))
		require.NoError(t, c.Execute(ctx, CommandCancel, "alice", "bob"))

		assert.Empty(t, members(t, s, KindOutgoing, "alice"))
		assert.Empty(t, members(t, s, KindIncoming, "bob"))
	})

	t.Run("remove on non-friends fails without writes", func(t *testing.T) {
		s := NewMemoryStore()
		c := newTestController(s)

		err := c.Execute(ctx, CommandRemove, "alice", "bob")
		require.ErrorIs(t, err, ErrNotFriends)

		rec, err := s.Get(ctx, KindFriends, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Revision, "rejections must not write")
	})

	t.Run("list of an unknown user is an empty set", func(t *testing.T) {
		c := newTestController(NewMemoryStore())

		ids, err := c.List(ctx, KindFriends, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
	})
}

func TestControllerConcurrentSends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := newTestController(s)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Execute(ctx, CommandSend, "alice", "bob")
		}(i)
	}
	wg.Wait()

	var ok, exists int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRequestExists):
			exists++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one send must win")
	assert.Equal(t, 1, exists, "the loser must see the existing request")

	assert.Equal(t, []string{"bob"}, members(t, s, KindOutgoing, "alice"))
	assert.Equal(t, []string{"alice"}, members(t, s, KindIncoming, "bob"))
}

// conflictingStore fails every conditional write, simulating a key under
// permanent contention.
type conflictingStore struct {
	*MemoryStore
}

func (s *conflictingStore) CompareAndPut(context.Context, Kind, string, []string, int64) error {
	return ErrRevisionConflict
}

func TestControllerRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	c := newTestController(&conflictingStore{NewMemoryStore()})

	conflicts := 0
	c.OnConflict = func(cmd Command) {
		assert.Equal(t, CommandSend, cmd)
		conflicts++
	}

	err := c.Execute(ctx, CommandSend, "alice", "bob")
	require.ErrorIs(t, err, ErrConcurrencyExhausted)
	assert.Equal(t, defaultMaxAttempts, conflicts)
}

// failingStore reports an outage on every read.
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) Get(context.Context, Kind, string) (Record, error) {
	return Record{}, errors.New("connection refused")
}

func TestControllerStoreUnavailable(t *testing.T) {
	c := newTestController(&failingStore{NewMemoryStore()})

	err := c.Execute(context.Background(), CommandSend, "alice", "bob")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = c.List(context.Background(), KindFriends, "alice")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestControllerPurgeUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := newTestController(s)

	// alice is friends with bob, has an incoming request from carol and an
	// outgoing one to dave.
	require.NoError(t, c.Execute(ctx, CommandSend, "alice", "bob"))
	require.NoError(t, c.Execute(ctx, CommandAccept, "bob", "alice"))
	require.NoError(t, c.Execute(ctx, CommandSend, "carol", "alice"))
	require.NoError(t, c.Execute(ctx, CommandSend, "alice", "dave"))

	require.NoError(t, c.PurgeUser(ctx, "alice"))

	for _, kind := range Kinds {
		assert.Empty(t, members(t, s, kind, "alice"))
		assert.NotContains(t, members(t, s, kind, "bob"), "alice")
		assert.NotContains(t, members(t, s, kind, "carol"), "alice")
		assert.NotContains(t, members(t, s, kind, "dave"), "alice")
	}
}
