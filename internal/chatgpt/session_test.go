// ABOUTME: Tests for the session store
// ABOUTME: Verifies single-flight claiming, continuity updates, and isolation between users

package chatgpt

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UnknownUserIsCompleted(t *testing.T) {
	s := NewStore()
	assert.True(t, s.IsCompleted(42))
}

func TestStore_TryBegin_FirstTurnMintsParentID(t *testing.T) {
	s := NewStore()

	convID, parentID, ok := s.TryBegin(42)
	require.True(t, ok)
	assert.Nil(t, convID)

	// The minted linkage token is a valid UUID
	_, err := uuid.Parse(parentID)
	require.NoError(t, err)

	assert.False(t, s.IsCompleted(42))
}

func TestStore_TryBegin_RefusesWhileInFlight(t *testing.T) {
	s := NewStore()

	_, _, ok := s.TryBegin(42)
	require.True(t, ok)

	_, _, ok = s.TryBegin(42)
	assert.False(t, ok)

	// Released after completion
	s.Complete(42)
	_, _, ok = s.TryBegin(42)
	assert.True(t, ok)
}

func TestStore_TryBegin_ReturnsStoredContinuity(t *testing.T) {
	s := NewStore()

	_, firstParent, ok := s.TryBegin(42)
	require.True(t, ok)

	conv := "conv-1"
	s.Update(42, &conv, "msg-9")
	s.Complete(42)

	convID, parentID, ok := s.TryBegin(42)
	require.True(t, ok)
	require.NotNil(t, convID)
	assert.Equal(t, "conv-1", *convID)
	assert.Equal(t, "msg-9", parentID)
	assert.NotEqual(t, firstParent, parentID)
}

func TestStore_Update_IgnoresUnknownUser(t *testing.T) {
	s := NewStore()
	conv := "conv-1"
	s.Update(42, &conv, "msg-1")

	_, ok := s.Get(42)
	assert.False(t, ok)
}

func TestStore_DistinctUsersDoNotInterfere(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		userID := int64(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, ok := s.TryBegin(userID)
			assert.True(t, ok)
			conv := uuid.New().String()
			s.Update(userID, &conv, uuid.New().String())
			s.Complete(userID)
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		userID := int64(100 + i)
		assert.True(t, s.IsCompleted(userID))
		sess, ok := s.Get(userID)
		require.True(t, ok)
		assert.NotNil(t, sess.ConversationID)
	}
}

func TestStore_ConcurrentClaimsOnlyOneWins(t *testing.T) {
	s := NewStore()

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := s.TryBegin(42); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}
