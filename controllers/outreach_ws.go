package controller

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// SendProgressEvent is one per-message outcome streamed during a bulk
// send.
type SendProgressEvent struct {
	MessageID uint   `json:"message_id"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}

var progressHub = struct {
	sync.Mutex
	subscribers map[*websocket.Conn]chan SendProgressEvent
}{subscribers: make(map[*websocket.Conn]chan SendProgressEvent)}

// BroadcastSendProgress pushes an event to every connected progress
// subscriber. Slow subscribers drop events rather than stalling the send
// loop.
func BroadcastSendProgress(event SendProgressEvent) {
	progressHub.Lock()
	defer progressHub.Unlock()
	for _, ch := range progressHub.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// HandleOutreachProgressWS streams bulk-send progress events to the
// client until it disconnects.
func HandleOutreachProgressWS(c *websocket.Conn) {
	ch := make(chan SendProgressEvent, 64)

	progressHub.Lock()
	progressHub.subscribers[c] = ch
	progressHub.Unlock()

	defer func() {
		progressHub.Lock()
		delete(progressHub.subscribers, c)
		progressHub.Unlock()
		c.Close()
	}()

	// Reader goroutine: detect disconnects (clients never send payloads).
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-ch:
			if err := c.WriteJSON(event); err != nil {
				log.Printf("Progress websocket write failed: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
