package sse

import (
	"context"
	"sync"

	"atlas-air/internal/models"
)

const clientBuffer = 16

// SeatEventEmitter fans seat status changes out to the SSE clients watching
// a flight.
type SeatEventEmitter struct {
	mu      sync.RWMutex
	clients map[int64][]chan models.SeatStatusEvent
	closed  bool
}

func NewSeatEventEmitter() *SeatEventEmitter {
	return &SeatEventEmitter{
		clients: make(map[int64][]chan models.SeatStatusEvent),
	}
}

// Subscribe registers a client for one flight. The channel is closed once
// ctx is done.
func (e *SeatEventEmitter) Subscribe(ctx context.Context, flightID int64) <-chan models.SeatStatusEvent {
	ch := make(chan models.SeatStatusEvent, clientBuffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	e.clients[flightID] = append(e.clients[flightID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(flightID, ch)
	}()

	return ch
}

// EmitSeatStatus delivers ev to every subscriber of its flight. Slow clients
// whose buffer is full miss the event.
func (e *SeatEventEmitter) EmitSeatStatus(ev models.SeatStatusEvent) {
	// Held across the sends so remove cannot close a channel mid-send.
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[ev.FlightID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *SeatEventEmitter) remove(flightID int64, ch chan models.SeatStatusEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[flightID]
	for i, c := range clients {
		if c == ch {
			e.clients[flightID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[flightID]) == 0 {
		delete(e.clients, flightID)
	}
}

// Close ends every open stream. Later subscriptions get a closed channel.
func (e *SeatEventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for flightID, clients := range e.clients {
		for _, ch := range clients {
			close(ch)
		}
		delete(e.clients, flightID)
	}
	e.closed = true
}

// ClientCount returns the number of clients watching a flight.
func (e *SeatEventEmitter) ClientCount(flightID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[flightID])
}
