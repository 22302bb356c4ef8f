package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bodul/loto/scan"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// client is a single SSE connection.
type client struct {
	ch chan string
}

// Broadcaster fans board events out to SSE clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]struct{}),
	}
}

// Register adds a client and returns it.
func (b *Broadcaster) Register() *client {
	c := &client{ch: make(chan string, sseChannelBuffer)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// Unregister removes a client and closes its channel.
func (b *Broadcaster) Unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
	b.mu.Unlock()
}

// Broadcast sends a message to every client. It never blocks.
func (b *Broadcaster) Broadcast(data string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		select {
		case c.ch <- data:
		default:
			// Channel full, skip slow client.
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Relay broadcasts orchestrator events until events is closed.
func (b *Broadcaster) Relay(events <-chan scan.Event) {
	for ev := range events {
		b.Broadcast(encodeEvent(ev))
	}
}

// ServeSSE streams broadcasts to one connection. onConnect may queue
// initial messages on the client.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, onConnect func(c *client)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := b.Register()
	defer b.Unregister(c)

	if onConnect != nil {
		onConnect(c)
	}
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-c.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// boardEvent is the JSON payload of one SSE message.
type boardEvent struct {
	Type    string       `json:"type"`
	Session *SessionView `json:"session,omitempty"`
	Message string       `json:"message,omitempty"`
}

func encodeEvent(ev scan.Event) string {
	view := newSessionView(ev.State)
	e := boardEvent{Type: ev.Kind.String(), Session: &view}
	if ev.Kind == scan.EventNotice {
		e.Message = scan.UserMessage(ev.Err)
	}
	data, _ := json.Marshal(e)
	return string(data)
}

// sseEffects tells connected renderers to play the win celebration.
type sseEffects struct {
	b *Broadcaster
}

// newSSEEffects returns the scan.EffectsFunc of the board.
func newSSEEffects(b *Broadcaster) scan.EffectsFunc {
	return func() (scan.Effects, error) {
		b.Broadcast(`{"type":"effects_ready"}`)
		return sseEffects{b: b}, nil
	}
}

func (e sseEffects) Celebrate(st scan.State) {
	view := newSessionView(st)
	data, _ := json.Marshal(boardEvent{Type: "celebrate", Session: &view})
	e.b.Broadcast(string(data))
}

func (e sseEffects) Close() error {
	e.b.Broadcast(`{"type":"effects_released"}`)
	return nil
}
