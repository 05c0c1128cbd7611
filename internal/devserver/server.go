// Package devserver is an in-memory emulator of the managed studio backend,
// covering the REST surface and the per-entity realtime WebSocket streams the
// feed engine consumes. It exists for local development and tests; nothing in
// it is production code.
package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/realtime"
)

// Server holds the in-memory backend state.
type Server struct {
	mu       sync.Mutex
	channels map[string]*channels.Channel
	posts    map[string]*posts.Post
	blobs    map[string]blob

	subMu sync.Mutex
	subs  map[subKey]map[*wsClient]struct{}

	upgrader websocket.Upgrader
	router   chi.Router
}

type blob struct {
	data []byte
	mime string
}

type subKey struct {
	channelID string
	entity    realtime.Entity
}

// wsClient serializes writes to one realtime subscriber.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// New creates an empty emulator.
func New() *Server {
	s := &Server{
		channels: make(map[string]*channels.Channel),
		posts:    make(map[string]*posts.Post),
		blobs:    make(map[string]blob),
		subs:     make(map[subKey]map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			// Dev server: accept any origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)

	r.Get("/api/channels/{channelID}", s.handleGetChannel)
	r.Post("/api/channels/{channelID}/posts", s.handleCreatePost)
	r.Get("/api/posts/{postID}", s.handleGetPost)
	r.Patch("/api/posts/{postID}", s.handleUpdatePost)
	r.Delete("/api/posts/{postID}", s.handleDeletePost)
	r.Get("/api/posts/{postID}/comments/{commentID}", s.handleGetComment)
	r.Post("/api/posts/{postID}/comments", s.handleCreateComment)
	r.Patch("/api/posts/{postID}/comments/{commentID}", s.handleUpdateComment)
	r.Delete("/api/posts/{postID}/comments/{commentID}", s.handleDeleteComment)
	r.Post("/api/posts/{postID}/reactions/toggle", s.handleToggleReaction)
	r.Post("/api/storage/upload", s.handleUpload)
	r.Get("/api/storage/{blobID}", s.handleGetBlob)
	r.Get("/api/profiles/{userID}", s.handleGetProfile)
	r.Get("/api/realtime", s.handleRealtime)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.router = r
	return s
}

// Handler returns the emulator's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleRealtime upgrades to WebSocket and registers the connection for the
// requested (channel, entity) stream until the peer disconnects.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel")
	entity := realtime.Entity(r.URL.Query().Get("entity"))
	switch entity {
	case realtime.EntityPosts, realtime.EntityComments, realtime.EntityReactions:
	default:
		http.Error(w, "unknown entity", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade realtime connection: %v", err)
		return
	}

	client := &wsClient{conn: conn}
	key := subKey{channelID: channelID, entity: entity}

	s.subMu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[*wsClient]struct{})
	}
	s.subs[key][client] = struct{}{}
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs[key], client)
		s.subMu.Unlock()
		if closeErr := conn.Close(); closeErr != nil {
			log.Printf("Failed to close realtime connection: %v", closeErr)
		}
	}()

	// Read loop: we never expect data frames, but reading services the
	// client's pings and detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast pushes one change envelope to every subscriber of the stream.
func (s *Server) broadcast(channelID string, entity realtime.Entity, op realtime.Op, row any) {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		log.Printf("Failed to marshal %s row: %v", entity, err)
		return
	}
	message, err := json.Marshal(realtime.Envelope{Entity: entity, Op: op, Row: rowJSON})
	if err != nil {
		log.Printf("Failed to marshal %s envelope: %v", entity, err)
		return
	}

	key := subKey{channelID: channelID, entity: entity}
	s.subMu.Lock()
	clients := make([]*wsClient, 0, len(s.subs[key]))
	for c := range s.subs[key] {
		clients = append(clients, c)
	}
	s.subMu.Unlock()

	for _, c := range clients {
		if err := c.send(message); err != nil {
			log.Printf("Failed to deliver %s event, dropping subscriber: %v", entity, err)
			s.subMu.Lock()
			delete(s.subs[key], c)
			s.subMu.Unlock()
		}
	}
}
