package sse

import (
	"context"
	"sync"

	"smec-portal/internal/models"
)

// SessionEmitter fans session changes out to subscribers. A nil session
// means logged out.
type SessionEmitter struct {
	clients     []chan *models.Session
	clientMutex sync.RWMutex
}

func NewSessionEmitter() *SessionEmitter {
	return &SessionEmitter{}
}

// Subscribe registers a client until ctx is done. The returned channel is
// closed on removal.
func (e *SessionEmitter) Subscribe(ctx context.Context) <-chan *models.Session {
	clientChan := make(chan *models.Session, 10)

	e.clientMutex.Lock()
	e.clients = append(e.clients, clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(clientChan)
	}()

	return clientChan
}

// Emit broadcasts without blocking on slow clients.
func (e *SessionEmitter) Emit(session *models.Session) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for _, clientChan := range e.clients {
		var snapshot *models.Session
		if session != nil {
			copied := *session
			snapshot = &copied
		}
		select {
		case clientChan <- snapshot:
		default:
			// buffer full, drop for this client
		}
	}
}

func (e *SessionEmitter) removeClient(clientChan chan *models.Session) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	for i, ch := range e.clients {
		if ch == clientChan {
			e.clients = append(e.clients[:i], e.clients[i+1:]...)
			close(clientChan)
			break
		}
	}
}

// ClientCount returns the number of live subscribers.
func (e *SessionEmitter) ClientCount() int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients)
}
