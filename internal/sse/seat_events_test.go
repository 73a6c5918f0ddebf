package sse

import (
	"context"
	"testing"
	"time"

	"atlas-air/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSeatStatus_OnlyMatchingFlight(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := e.Subscribe(ctx, 1)
	b := e.Subscribe(ctx, 2)

	e.EmitSeatStatus(models.NewSeatStatusEvent(1, 10, "1A", models.SeatStatusReserved))

	select {
	case ev := <-a:
		assert.Equal(t, int64(10), ev.SeatID)
		assert.Equal(t, models.SeatStatusReserved, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("subscriber of flight 1 got nothing")
	}

	select {
	case ev := <-b:
		t.Fatalf("flight 2 subscriber got %+v", ev)
	default:
	}
}

func TestSubscribe_RemovedOnCancel(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, 5)
	require.Equal(t, 1, e.ClientCount(5))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, e.ClientCount(5))

	// emitting after removal must not panic
	assert.NotPanics(t, func() {
		e.EmitSeatStatus(models.NewSeatStatusEvent(5, 1, "1A", models.SeatStatusAvailable))
	})
}

func TestEmitSeatStatus_DropsWhenBufferFull(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx, 9)
	for i := 0; i < clientBuffer+5; i++ {
		e.EmitSeatStatus(models.NewSeatStatusEvent(9, int64(i), "", models.SeatStatusReserved))
	}
	assert.Len(t, ch, clientBuffer)
}

func TestClose_EndsStreams(t *testing.T) {
	e := NewSeatEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx, 3)
	e.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, e.ClientCount(3))

	late := e.Subscribe(ctx, 3)
	_, ok = <-late
	assert.False(t, ok)

	// the cancel goroutine must not close ch a second time
	cancel()
	time.Sleep(20 * time.Millisecond)
}
