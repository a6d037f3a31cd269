package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/config"
)

func TestAttemptLock_AcquireAndRelease(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	lock := NewAttemptLock(rdb, "pa", time.Minute)
	mock.MatchExpectationsInOrder(true)
	mock.Regexp().ExpectSetNX("pa:7:3", `.+`, time.Minute).SetVal(true)
	mock.Regexp().ExpectEvalSha(releaseScript.Hash(), []string{"pa:7:3"}, `.+`).SetVal(int64(1))

	release, err := lock.Acquire(context.Background(), 7, 3)
	require.NoError(t, err)
	release(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptLock_Held(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	lock := NewAttemptLock(rdb, "pa", time.Minute)
	mock.Regexp().ExpectSetNX("pa:7:3", `.+`, time.Minute).SetVal(false)

	_, err := lock.Acquire(context.Background(), 7, 3)
	assert.ErrorIs(t, err, ErrLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptLock_RedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	lock := NewAttemptLock(rdb, "pa", time.Minute)
	mock.Regexp().ExpectSetNX("pa:1:1", `.+`, time.Minute).SetErr(errors.New("down"))

	_, err := lock.Acquire(context.Background(), 1, 1)
	assert.EqualError(t, err, "down")
}

func TestAttemptLock_NilClientAlwaysGrants(t *testing.T) {
	var lock *AttemptLock
	release, err := lock.Acquire(context.Background(), 1, 1)
	require.NoError(t, err)
	release(context.Background())

	release, err = NewAttemptLock(nil, "", 0).Acquire(context.Background(), 1, 1)
	require.NoError(t, err)
	release(context.Background())
}

func TestResponseKey_Strategies(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "c", KeyStrategy: "path_query"}
	a := ResponseKey(cfg, "GET", "/v1/showtimes/1", "")
	b := ResponseKey(cfg, "GET", "/v1/showtimes/2", "")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ResponseKey(cfg, "HEAD", "/v1/showtimes/1", ""))
	assert.True(t, len(a) > 2 && a[:2] == "c:")

	cfg.KeyStrategy = "method_path"
	assert.NotEqual(t, ResponseKey(cfg, "GET", "/x", ""), ResponseKey(cfg, "HEAD", "/x", ""))
	assert.Equal(t, ResponseKey(cfg, "GET", "/x", "a=1"), ResponseKey(cfg, "GET", "/x", "a=2"))
}

func TestResponses_InvalidateShowtime(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{Enabled: true, Prefix: "c"}
	mock.ExpectDel(ResponseKey(cfg, "GET", "/v1/showtimes/12", "")).SetVal(1)

	require.NoError(t, NewResponses(rdb, cfg).InvalidateShowtime(context.Background(), 12))
	assert.NoError(t, mock.ExpectationsWereMet())

	var off *Responses
	assert.NoError(t, off.InvalidateShowtime(context.Background(), 12))
	assert.Nil(t, NewResponses(rdb, config.CacheConfig{Enabled: false}))
}
