// Package live serves the latest tick snapshot over HTTP and websocket.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/ghalamif/hwpulse/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

// Store holds the most recent snapshot published by the scheduler.
type Store struct {
	mu   sync.RWMutex
	snap domain.Snapshot
	set  bool
}

func NewStore() *Store { return &Store{} }

func (s *Store) Publish(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.set = true
}

// Latest returns the last snapshot and whether any tick has published yet.
func (s *Store) Latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}

type Handler struct {
	store    *Store
	upgrader websocket.Upgrader
	log      logr.Logger
}

func NewHandler(store *Store, log logr.Logger) *Handler {
	return &Handler{
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithName("live"),
	}
}

// Register mounts /ws and /api/snapshot on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/api/snapshot", h.ServeSnapshot)
}

func (h *Handler) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, ok := h.store.Latest()
	if !ok {
		http.Error(w, "no sample yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error(err, "encode snapshot")
	}
}

// ServeWS replies to every client message with the latest snapshot.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.V(1).Info("websocket client disconnected", "error", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		snap, _ := h.store.Latest()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snap); err != nil {
			h.log.Error(err, "websocket write failed")
			return
		}
	}
}
