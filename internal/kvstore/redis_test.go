package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quiztutor/internal/model"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), ttl)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

var key = model.SessionKey{StudentID: "s1", Subject: "cyber", Week: "week1"}

func TestGetAbsent(t *testing.T) {
	s, _ := newTestStore(t, 0)

	p, err := s.GetPerformance(context.Background(), key)

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	p := model.NewPerformanceState()
	p.Started = true
	p.CurrentQuestionIndex = 2
	p.LastScore = 0.85
	p.AppendAttempt(1, model.AttemptRecord{AnswerText: "a", Score: 0.9})
	p.AppendAttempt(1, model.AttemptRecord{AnswerText: "why?", IsExploration: true})

	require.NoError(t, s.PutPerformance(ctx, key, p))
	got, err := s.GetPerformance(ctx, key)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Started)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
	assert.Equal(t, 0.85, got.LastScore)
	require.Len(t, got.Attempts(1), 2)
	assert.True(t, got.Attempts(1)[1].IsExploration)
	assert.Equal(t, 2, got.Attempts(1)[1].AttemptNumber)
}

func TestKeysAreEscaped(t *testing.T) {
	s, mr := newTestStore(t, 0)
	ctx := context.Background()

	k1 := model.SessionKey{StudentID: "a/b", Subject: "c", Week: "w"}
	k2 := model.SessionKey{StudentID: "a", Subject: "b/c", Week: "w"}

	p := model.NewPerformanceState()
	p.CurrentQuestionIndex = 1
	require.NoError(t, s.PutPerformance(ctx, k1, p))

	got, err := s.GetPerformance(ctx, k2)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, mr.Exists("quiztutor:perf:a%2Fb/c/w"))
}

func TestTTL(t *testing.T) {
	s, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.PutPerformance(ctx, key, model.NewPerformanceState()))
	assert.Equal(t, time.Hour, mr.TTL(redisKey(key)))

	mr.FastForward(2 * time.Hour)
	got, err := s.GetPerformance(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvalidKey(t *testing.T) {
	s, _ := newTestStore(t, 0)

	err := s.PutPerformance(context.Background(), model.SessionKey{}, model.NewPerformanceState())

	assert.ErrorIs(t, err, model.ErrInvalidKey)
}

func TestUnavailable(t *testing.T) {
	s, mr := newTestStore(t, 0)
	mr.Close()

	_, err := s.GetPerformance(context.Background(), key)
	assert.Error(t, err)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
