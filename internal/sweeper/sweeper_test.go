package sweeper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu     sync.Mutex
	sweeps int
}

func (c *countingStore) Get(string) ([]byte, bool)         { return nil, false }
func (c *countingStore) Set(string, []byte, time.Duration) {}
func (c *countingStore) Clear(...string)                   {}

func (c *countingStore) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
	return 1
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweeps
}

func TestSweeper_SweepsImmediatelyAndOnInterval(t *testing.T) {
	store := &countingStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(store, logger, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return store.count() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

func TestSweeper_DefaultInterval(t *testing.T) {
	store := &countingStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := New(store, logger, 0)
	assert.Equal(t, DefaultInterval, s.interval)
}
