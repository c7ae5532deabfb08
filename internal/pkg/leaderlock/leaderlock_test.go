package leaderlock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	l := New(rdb, "loyalty:leader", 30*time.Second)

	mock.ExpectSetNX("loyalty:leader", l.token, 30*time.Second).SetVal(true)

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryAcquire_Held(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	l := New(rdb, "loyalty:leader", 30*time.Second)

	mock.ExpectSetNX("loyalty:leader", l.token, 30*time.Second).SetVal(false)

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokensDiffer(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	a := New(rdb, "k", time.Second)
	b := New(rdb, "k", time.Second)
	// Two holders on the same key must never share a token, otherwise one
	// could release the other's lock.
	assert.NotEqual(t, a.token, b.token)
	assert.NotEmpty(t, a.token)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	l := New(rdb, "loyalty:leader", 30*time.Second)

	mock.ExpectSetNX("loyalty:leader", l.token, 30*time.Second).SetVal(false)

	// Retry interval longer than the deadline: the single failed attempt is
	// followed by context expiry, not another SetNX.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
