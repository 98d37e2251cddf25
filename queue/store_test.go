package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_EnqueueAndGetByEventUID(t *testing.T) {
	s := NewInMemoryStore()
	op := PendingOperation{ID: "op1", EventUID: "uid1", Kind: Create}
	require.NoError(t, s.Enqueue(op))

	got, ok := s.GetByEventUID("uid1")
	require.True(t, ok)
	assert.Equal(t, "op1", got.ID)
}

func TestInMemoryStore_EnqueueReplacesPriorOpForSameEvent(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op1", EventUID: "uid1", Kind: Create}))
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op2", EventUID: "uid1", Kind: Update}))

	got, ok := s.GetByEventUID("uid1")
	require.True(t, ok)
	assert.Equal(t, "op2", got.ID)

	_, stillThere := s.GetByEventUID("uid1")
	assert.True(t, stillThere)
}

func TestInMemoryStore_DeleteRemovesSecondaryIndex(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op1", EventUID: "uid1", Kind: Create}))
	require.NoError(t, s.Delete("op1"))

	_, ok := s.GetByEventUID("uid1")
	assert.False(t, ok)
}

func TestInMemoryStore_GetReadyOperations_RespectsNextRetryAndMaxRetries(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op1", EventUID: "uid1", Kind: Create, Status: Pending, CreatedAtMillis: 1}))
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op2", EventUID: "uid2", Kind: Create, Status: Failed, RetryCount: MaxRetries, NextRetryAtMillis: 0, CreatedAtMillis: 2}))
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op3", EventUID: "uid3", Kind: Create, Status: Failed, RetryCount: 1, NextRetryAtMillis: 1000, CreatedAtMillis: 3}))

	ready := s.GetReadyOperations(500)
	require.Len(t, ready, 1)
	assert.Equal(t, "op1", ready[0].ID)

	readyLater := s.GetReadyOperations(1000)
	require.Len(t, readyLater, 2)
	assert.Equal(t, "op1", readyLater[0].ID)
	assert.Equal(t, "op3", readyLater[1].ID)
}

func TestInMemoryStore_MarkFailedUpdatesFields(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Enqueue(PendingOperation{ID: "op1", EventUID: "uid1", Kind: Update}))
	require.NoError(t, s.MarkFailed("op1", "boom", 1, 5000))

	got, ok := s.GetByEventUID("uid1")
	require.True(t, ok)
	assert.Equal(t, Failed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, int64(5000), got.NextRetryAtMillis)
}
