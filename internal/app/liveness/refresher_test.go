package liveness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingToucher struct {
	calls atomic.Int32
	err   error
}

func (c *countingToucher) TouchActivity(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestRefresher_TouchesImmediatelyAndPeriodically(t *testing.T) {
	toucher := &countingToucher{}
	r := &Refresher{Toucher: toucher, Interval: 10 * time.Millisecond}

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { return toucher.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_KeepsRunningAfterErrors(t *testing.T) {
	toucher := &countingToucher{err: errors.New("db down")}
	r := &Refresher{Toucher: toucher, Interval: 10 * time.Millisecond}

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Touches() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_StopIsIdempotent(t *testing.T) {
	toucher := &countingToucher{}
	r := &Refresher{Toucher: toucher, Interval: time.Hour}

	r.Start(context.Background())
	require.Eventually(t, func() bool { return toucher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.Equal(t, int32(1), toucher.calls.Load())
}

func TestRefresher_StartTwiceRunsOneLoop(t *testing.T) {
	toucher := &countingToucher{}
	r := &Refresher{Toucher: toucher, Interval: time.Hour}

	r.Start(context.Background())
	r.Start(context.Background())
	require.Eventually(t, func() bool { return toucher.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	r.Stop()

	assert.Equal(t, int32(1), toucher.calls.Load())
}
