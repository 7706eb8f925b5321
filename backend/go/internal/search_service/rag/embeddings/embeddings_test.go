package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func TestHashingModel_DeterministicAndNormalized(t *testing.T) {
	m := NewHashingModel(32)
	vecs, err := m.Embed(context.Background(), []string{"persistent headaches", "Persistent Headaches", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 32)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float32
	for _, v := range vecs[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
	for _, v := range vecs[2] {
		assert.Zero(t, v)
	}
}

func TestProviderModel(t *testing.T) {
	p := new(mockProvider)
	p.On("Embed", mock.Anything, "one").Return([]float32{1, 2}, nil).Once()
	p.On("EmbedBatch", mock.Anything, []string{"a", "b"}).Return([][]float32{{1}}, nil).Once()

	m := NewProviderModel(p)
	vecs, err := m.Embed(context.Background(), []string{"one"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}}, vecs)

	_, err = m.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
	p.AssertExpectations(t)
}

func TestCachedModel_RedisAndLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := new(mockModel)
	next.On("Embed", mock.Anything, []string{"headache"}).Return([][]float32{{0.5, 0.5}}, nil).Once()

	c, err := NewCachedModel(next, "hash-2", WithRedis(rdb))
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"headache"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, vecs)
	assert.Len(t, mr.Keys(), 1)

	// Served from the local cache.
	_, err = c.Embed(context.Background(), []string{"headache"})
	require.NoError(t, err)

	// A fresh process sees the Redis copy.
	c2, err := NewCachedModel(next, "hash-2", WithRedis(rdb))
	require.NoError(t, err)
	vecs, err = c2.Embed(context.Background(), []string{"headache"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, vecs)

	next.AssertNumberOfCalls(t, "Embed", 1)
}

func TestCachedModel_OnlyMissingTextsReachService(t *testing.T) {
	next := new(mockModel)
	next.On("Embed", mock.Anything, []string{"a"}).Return([][]float32{{1}}, nil).Once()
	next.On("Embed", mock.Anything, []string{"b"}).Return([][]float32{{2}}, nil).Once()

	c, err := NewCachedModel(next, "m")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vecs)
	next.AssertExpectations(t)
}

func TestCachedModel_RedisDownStillEmbeds(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	next := new(mockModel)
	next.On("Embed", mock.Anything, []string{"x"}).Return([][]float32{{3}}, nil).Once()
	c, err := NewCachedModel(next, "m", WithRedis(rdb))
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}}, vecs)
}

func TestCachedModel_ServiceErrorPropagates(t *testing.T) {
	next := new(mockModel)
	next.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	c, err := NewCachedModel(next, "m")
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	assert.EqualError(t, err, "quota exceeded")
}
