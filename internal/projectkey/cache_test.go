package projectkey

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheLoadsOnMiss(t *testing.T) {
	var calls int32
	c := New(10, time.Minute, func(ctx context.Context, projectID string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "secret-" + projectID, nil
	})

	secret, err := c.Secret(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "secret-p1", secret)

	secret, err = c.Secret(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "secret-p1", secret)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call should be served from cache")
}

func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	var calls int32
	block := make(chan struct{})
	c := New(10, time.Minute, func(ctx context.Context, projectID string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return "secret", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Secret(context.Background(), "p1")
		}()
	}

	close(block)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "concurrent misses for the same key should coalesce")
}

func TestCacheEvictsBeyondCapacity(t *testing.T) {
	c := New(2, time.Minute, func(ctx context.Context, projectID string) (string, error) {
		return "secret-" + projectID, nil
	})

	_, _ = c.Secret(context.Background(), "p1")
	_, _ = c.Secret(context.Background(), "p2")
	_, _ = c.Secret(context.Background(), "p3")

	_, ok := c.get("p1")
	assert.False(t, ok, "oldest entry should be evicted once capacity is exceeded")
}
