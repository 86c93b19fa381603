package sse

import (
	"context"
	"sync"

	"park-ticketing/internal/models"
)

// AvailabilityEmitter fans out capacity updates to clients watching a visit day.
type AvailabilityEmitter struct {
	clients map[string][]chan models.DayAvailability
	mu      sync.RWMutex
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{
		clients: make(map[string][]chan models.DayAvailability),
	}
}

// Subscribe registers a client for day. The channel is closed once ctx is done.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, day string) <-chan models.DayAvailability {
	clientChan := make(chan models.DayAvailability, 10)

	e.mu.Lock()
	e.clients[day] = append(e.clients[day], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(day, clientChan)
	}()

	return clientChan
}

// Emit never blocks; a client with a full buffer misses the update.
func (e *AvailabilityEmitter) Emit(update models.DayAvailability) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[update.Date] {
		select {
		case clientChan <- update:
		default:
		}
	}
}

func (e *AvailabilityEmitter) remove(day string, clientChan chan models.DayAvailability) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[day]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[day] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[day]) == 0 {
		delete(e.clients, day)
	}
}

func (e *AvailabilityEmitter) ClientCount(day string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[day])
}
