// Package sse provides Server-Sent Events broadcasting for promptrium.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout is the timeout for writing to SSE clients.
	// Prevents blocking on stale connections.
	WriteTimeout = 2 * time.Second
	// KeepAliveInterval is how often an idle stream receives a comment line.
	KeepAliveInterval = 30 * time.Second
)

// Event types published by the service.
const (
	EventConnected    = "connected"
	EventPrompts      = "prompts"
	EventSettings     = "settings"
	EventFilters      = "filters"
	EventNotification = "notification"
	EventDismissed    = "notification_dismissed"
	EventImport       = "import"
	EventCopied       = "copied"
)

// Event is the JSON body of every message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	At   int64  `json:"at"`
}

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string

	writeMu sync.Mutex
}

// Broadcaster manages SSE client connections and message broadcasting.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
	now     func() time.Time
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
		now:     time.Now,
	}
}

// AddClient adds a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:      id,
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[id] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection. Safe to call more than once.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	closeDone(client)

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

func closeDone(client *Client) {
	if client.Done == nil {
		return
	}
	select {
	case <-client.Done:
		// Already closed
	default:
		close(client.Done)
	}
}

// Publish sends an event of the given type to all connected clients.
func (b *Broadcaster) Publish(eventType string, data any) {
	b.Broadcast(Event{Type: eventType, Data: data, At: b.now().UnixMilli()})
}

// Broadcast sends a message to all connected clients.
// Uses non-blocking writes with timeout to prevent stale connections from blocking.
func (b *Broadcaster) Broadcast(data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}

	message := []byte(formatMessage(data, jsonData))

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	// Use a channel to collect dead clients from concurrent writes
	deadClientsCh := make(chan *Client, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				writeToClient(c, message, deadClientsCh)
			}(client)
		}
	}

	// Wait for all writes to complete (with their individual timeouts)
	wg.Wait()
	close(deadClientsCh)

	for client := range deadClientsCh {
		log.Debug().Str("clientId", client.ID).Msg("Dead SSE client removed")
		b.RemoveClient(client)
	}
}

// formatMessage renders one SSE frame. Events carry an "event:" line so
// browsers can addEventListener by type.
func formatMessage(data any, jsonData []byte) string {
	if ev, ok := data.(Event); ok && ev.Type != "" {
		return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, jsonData)
	}
	return fmt.Sprintf("data: %s\n\n", jsonData)
}

// writeToClient writes a message to a single client with timeout.
func writeToClient(client *Client, message []byte, deadCh chan<- *Client) {
	// Use a timeout channel to prevent blocking on stale connections
	result := make(chan error, 1)

	go func() {
		client.writeMu.Lock()
		defer client.writeMu.Unlock()
		_, err := client.Writer.Write(message)
		if err == nil {
			client.Flusher.Flush()
		}
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadCh <- client
		}
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, marking client for removal")
		deadCh <- client
	case <-client.Done:
		// Client disconnected during write
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE handles an SSE connection request.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	hello, _ := json.Marshal(Event{
		Type: EventConnected,
		Data: map[string]string{"clientId": client.ID},
		At:   b.now().UnixMilli(),
	})
	client.writeMu.Lock()
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventConnected, hello)
	client.Flusher.Flush()
	client.writeMu.Unlock()

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			client.writeMu.Lock()
			_, err := fmt.Fprint(w, ": keepalive\n\n")
			if err == nil {
				client.Flusher.Flush()
			}
			client.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
