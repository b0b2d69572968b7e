package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/core"
)

type countingResolver struct {
	calls int
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, credential string) (core.UserContext, error) {
	r.calls++
	if r.err != nil {
		return core.UserContext{}, r.err
	}
	return core.UserContext{UserID: "u-" + credential, OrganizationID: "org1", Role: "agent"}, nil
}

func TestCachingResolverMemoizesHits(t *testing.T) {
	inner := &countingResolver{}
	r := NewCachingResolver(inner, nil)

	first, err := r.Resolve(context.Background(), "token-a")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "token-a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingResolverExpiresEntries(t *testing.T) {
	inner := &countingResolver{}
	r := NewCachingResolver(inner, nil, WithTTL(time.Minute))

	now := time.Now()
	r.now = func() time.Time { return now }
	_, err := r.Resolve(context.Background(), "token-a")
	require.NoError(t, err)

	r.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = r.Resolve(context.Background(), "token-a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingResolverNeverCachesFailures(t *testing.T) {
	inner := &countingResolver{err: &core.AuthError{Message: "revoked"}}
	r := NewCachingResolver(inner, nil)

	_, err := r.Resolve(context.Background(), "token-a")
	var ae *core.AuthError
	require.ErrorAs(t, err, &ae)

	_, err = r.Resolve(context.Background(), "token-a")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingResolverEvictsOldestWhenFull(t *testing.T) {
	inner := &countingResolver{}
	r := NewCachingResolver(inner, nil, WithMaxEntries(2))

	now := time.Now()
	tick := 0
	r.now = func() time.Time { tick++; return now.Add(time.Duration(tick) * time.Second) }

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), fmt.Sprintf("token-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	// token-0 was the oldest and must have been evicted.
	_, err := r.Resolve(context.Background(), "token-0")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)

	// token-2 is still cached.
	_, err = r.Resolve(context.Background(), "token-2")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)
}

func TestCachingResolverRejectsEmptyCredential(t *testing.T) {
	r := NewCachingResolver(&countingResolver{}, nil)
	_, err := r.Resolve(context.Background(), "")
	var ae *core.AuthError
	require.ErrorAs(t, err, &ae)
}
