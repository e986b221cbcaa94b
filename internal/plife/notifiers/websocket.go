package notifiers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daniacca/plife/internal/plife"
	"github.com/gorilla/websocket"
)

// WebSocketNotifier streams simulation events (frame snapshots and
// lifecycle changes) to connected WebSocket clients. This is the wire
// the renderer hangs off: each frame event carries the full immutable
// snapshot, so a client can draw without further synchronization.
type WebSocketNotifier struct {
	id         string
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	upgrader   websocket.Upgrader
	broadcast  chan plife.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewWebSocketNotifier creates a new WebSocket notifier
func NewWebSocketNotifier(id string) *WebSocketNotifier {
	notifier := &WebSocketNotifier{
		id:         id,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan plife.Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	// Start the broadcaster goroutine
	notifier.wg.Add(1)
	go notifier.run()

	return notifier
}

// ID returns the notifier ID
func (wsn *WebSocketNotifier) ID() string {
	return wsn.id
}

// Type returns the notifier type
func (wsn *WebSocketNotifier) Type() string {
	return "websocket"
}

// RegisterClient registers a new WebSocket client connection
func (wsn *WebSocketNotifier) RegisterClient(conn *websocket.Conn) {
	select {
	case wsn.register <- conn:
	case <-wsn.done:
		// Notifier is closing, ignore
	}
}

// UnregisterClient unregisters a WebSocket client connection
func (wsn *WebSocketNotifier) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsn.unregister <- conn:
	case <-wsn.done:
		// Notifier is closing, ignore
	}
}

// ClientCount returns the number of connected clients.
func (wsn *WebSocketNotifier) ClientCount() int {
	wsn.mu.RLock()
	defer wsn.mu.RUnlock()
	return len(wsn.clients)
}

// Notify queues the event for broadcast to all connected clients.
// Frame events arrive at simulation rate, so the queue is bounded and
// drops under backpressure rather than stalling the caller.
func (wsn *WebSocketNotifier) Notify(ctx context.Context, event plife.Event) error {
	select {
	case wsn.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(1 * time.Second):
		return fmt.Errorf("broadcast queue full")
	}
}

// run handles client registration/unregistration and message broadcasting
func (wsn *WebSocketNotifier) run() {
	defer wsn.wg.Done()
	for {
		select {
		case <-wsn.done:
			// Shutdown signal received, exit gracefully
			return

		case conn := <-wsn.register:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			wsn.clients[conn] = true
			wsn.mu.Unlock()

		case conn := <-wsn.unregister:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			if _, ok := wsn.clients[conn]; ok {
				delete(wsn.clients, conn)
				conn.Close()
			}
			wsn.mu.Unlock()

		case event, ok := <-wsn.broadcast:
			if !ok {
				// Channel closed, exit
				return
			}
			jsonData, err := event.JSON()
			if err != nil {
				continue
			}

			// Collect connections to write to (to avoid holding lock during write)
			wsn.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(wsn.clients))
			for conn := range wsn.clients {
				conns = append(conns, conn)
			}
			wsn.mu.RUnlock()

			// Write to each connection (outside the lock to avoid blocking)
			var toRemove []*websocket.Conn
			for _, conn := range conns {
				if conn == nil {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
					// Mark for removal
					toRemove = append(toRemove, conn)
					conn.Close()
				}
			}

			// Remove failed connections
			if len(toRemove) > 0 {
				wsn.mu.Lock()
				for _, conn := range toRemove {
					delete(wsn.clients, conn)
				}
				wsn.mu.Unlock()
			}
		}
	}
}

// Close closes all WebSocket connections and stops the goroutine
func (wsn *WebSocketNotifier) Close() error {
	// Signal the goroutine to stop
	close(wsn.done)

	// Close all client connections
	wsn.mu.Lock()
	for conn := range wsn.clients {
		conn.Close()
		delete(wsn.clients, conn)
	}
	wsn.mu.Unlock()

	// Wait for the goroutine to finish
	wsn.wg.Wait()

	return nil
}

// GetUpgrader returns the WebSocket upgrader for HTTP handlers
func (wsn *WebSocketNotifier) GetUpgrader() websocket.Upgrader {
	return wsn.upgrader
}
