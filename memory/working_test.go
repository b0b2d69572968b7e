package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/core"
)

func TestWorkingStoreSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryWorkingStore()
	key := UserKey("org1", "u1")

	require.NoError(t, s.Set(ctx, key, &core.WorkingMemory{CurrentPage: "/dashboard"}, 0))

	wm, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, "/dashboard", wm.CurrentPage)

	// Mutating the returned value must not leak into the store.
	wm.CurrentPage = "/elsewhere"
	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", again.CurrentPage)
}

func TestWorkingStoreAbsentKeyReturnsNil(t *testing.T) {
	s := NewInMemoryWorkingStore()
	wm, err := s.Get(context.Background(), UserKey("org1", "nobody"))
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestWorkingStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryWorkingStore()
	key := ConversationKey("org1", "conv1")

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, key, &core.WorkingMemory{ActiveEntityID: "c1"}, time.Minute))

	s.now = func() time.Time { return now.Add(59 * time.Second) }
	wm, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, wm)

	s.now = func() time.Time { return now.Add(61 * time.Second) }
	wm, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestWorkingStoreScopesAreDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryWorkingStore()

	require.NoError(t, s.Set(ctx, UserKey("org1", "u1"), &core.WorkingMemory{CurrentPage: "/a"}, 0))
	require.NoError(t, s.Set(ctx, ConversationKey("org1", "u1"), &core.WorkingMemory{CurrentPage: "/b"}, 0))

	byUser, err := s.Get(ctx, UserKey("org1", "u1"))
	require.NoError(t, err)
	byConv, err := s.Get(ctx, ConversationKey("org1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "/a", byUser.CurrentPage)
	assert.Equal(t, "/b", byConv.CurrentPage)
}

func TestRecordActionTrims(t *testing.T) {
	var wm core.WorkingMemory
	for i := 0; i < core.MaxRecentActions+3; i++ {
		wm.RecordAction("action")
	}
	assert.Len(t, wm.RecentActions, core.MaxRecentActions)
}
