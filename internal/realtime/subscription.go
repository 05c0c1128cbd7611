package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Subscription maintains one WebSocket connection for a single entity stream
// scoped to a channel, redialing on error until its context is cancelled.
type Subscription struct {
	wsURL    string
	entity   Entity
	handlers Handlers
}

// NewSubscription creates a subscription for one entity stream.
// baseWSURL is the realtime endpoint (ws:// or wss://); the channel and
// entity are carried as query parameters.
func NewSubscription(baseWSURL, channelID string, entity Entity, handlers Handlers) *Subscription {
	return &Subscription{
		wsURL:    baseWSURL + "?channel=" + url.QueryEscape(channelID) + "&entity=" + url.QueryEscape(string(entity)),
		entity:   entity,
		handlers: handlers,
	}
}

// Start begins consuming events.
// Runs until the context is cancelled, reconnecting on errors.
func (s *Subscription) Start(ctx context.Context) error {
	log.Printf("Starting %s subscription: %s", s.entity, s.wsURL)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s subscription shutting down", s.entity)
			return ctx.Err()
		default:
			if err := s.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("%s subscription connection error: %v. Retrying in 5s...", s.entity, err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// connect establishes the WebSocket connection and processes events
func (s *Subscription) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	var connOnce sync.Once
	closeConn := func() {
		connOnce.Do(func() {
			if closeErr := conn.Close(); closeErr != nil {
				log.Printf("Failed to close WebSocket connection: %v", closeErr)
			}
		})
	}
	defer closeConn()

	log.Printf("Connected (%s subscription)", s.entity)

	// Read deadline detects dead connections; the pong handler keeps pushing it out
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	var closeOnce sync.Once

	// Ping goroutine
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					log.Printf("Failed to send ping: %v", err)
					closeOnce.Do(func() { close(done) })
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				closeOnce.Do(func() { close(done) })
				return
			}
		}
	}()
	defer closeOnce.Do(func() { close(done) })

	// Closing the connection is the only way to unblock a pending ReadMessage,
	// so teardown must not wait for the read deadline
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		closeConn()
	}()

	// Read loop
	for {
		select {
		case <-done:
			return fmt.Errorf("connection closed by ping failure")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Failed to parse %s event: %v", s.entity, err)
			continue
		}

		// Handler failures are logged and never block the stream; a later
		// event or manual refresh self-heals the view
		if err := dispatch(ctx, &env, s.handlers); err != nil {
			log.Printf("Failed to handle %s event: %v", s.entity, err)
		}
	}
}
