package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octowatcher/internal/logging"
)

func TestNextTickAlignment(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 37, 0, time.UTC)

	aligned := New(Options{Interval: time.Minute, AlignToClock: true}, logging.Nop())
	assert.Equal(t, time.Date(2026, 8, 31, 12, 1, 0, 0, time.UTC), aligned.nextTick(now))

	free := New(Options{Interval: time.Minute}, logging.Nop())
	assert.Equal(t, now.Add(time.Minute), free.nextTick(now))
}

func TestRunTicksAndStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, Name: "test"}, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ticked := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("scheduler never ticked")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
