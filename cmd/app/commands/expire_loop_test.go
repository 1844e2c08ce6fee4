package commands

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) ExpireStale(context.Context, time.Time) ([]string, error) {
	c.calls.Add(1)
	return nil, nil
}

func TestRunExpireLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	expirer := &countingExpirer{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunExpireLoop(ctx, expirer, 5*time.Millisecond, discardLogger())
	}()

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expire loop did not stop")
	}
}
