package kaiku

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// APIServer exposes the engine over HTTP for the map UI: feed and cluster
// queries, submissions, votes, deletes, and a websocket fanout of canonical
// collection changes.
type APIServer struct {
	engine *Engine

	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientMu  sync.RWMutex
	broadcast chan PushEvent
	quit      chan struct{}
}

func NewAPIServer(engine *Engine, allowedOrigins []string) *APIServer {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	s := &APIServer{
		engine:    engine,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan PushEvent, 64),
		quit:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedMap[r.Header.Get("Origin")]
			},
		},
	}

	// Every canonical change fans out to connected UI clients.
	engine.Reconciler().AddListener(func(event PushEvent) {
		select {
		case <-s.quit:
		case s.broadcast <- event:
		default:
			logrus.Debug("ws broadcast queue full, dropping event")
		}
	})
	go s.broadcastLoop()

	return s
}

// Stop terminates the broadcast loop and closes every websocket client.
func (s *APIServer) Stop() {
	close(s.quit)

	s.clientMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientMu.Unlock()
}

// Handler builds the router with CORS applied.
func (s *APIServer) Handler(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/feed", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/clusters", s.handleClusters).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{id}/vote", s.handleVote).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func parseViewport(r *http.Request) (*Viewport, error) {
	bbox := r.URL.Query().Get("bbox")
	if bbox == "" {
		return nil, nil
	}
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox wants minLat,minLng,maxLat,maxLng")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad bbox component %q", p)
		}
		vals[i] = v
	}
	return &Viewport{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}, nil
}

func (s *APIServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	viewport, err := parseViewport(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		messages, err := s.engine.Fetch(r.Context(), viewport)
		if err != nil {
			logrus.Warnf("feed refresh failed, serving local view: %v", err)
			writeJSON(w, s.engine.Feed(viewport))
			return
		}
		writeJSON(w, messages)
		return
	}
	writeJSON(w, s.engine.Feed(viewport))
}

func (s *APIServer) handleClusters(w http.ResponseWriter, r *http.Request) {
	zoom, err := strconv.ParseFloat(r.URL.Query().Get("zoom"), 64)
	if err != nil {
		http.Error(w, "zoom must be a number", http.StatusBadRequest)
		return
	}
	viewport, err := parseViewport(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.engine.Clusters(zoom, viewport))
}

func (s *APIServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string    `json:"text"`
		Location *LatLng   `json:"location"`
		ParentID MessageID `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	msg, err := s.engine.Submit(r.Context(), Draft{Text: body.Text, Location: body.Location, ParentID: body.ParentID})
	if err != nil {
		var rateLimit *RateLimitError
		var moderation *ModerationError
		switch {
		case errors.Is(err, ErrLocationUnavailable):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &rateLimit):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":       "rate_limited",
				"retry_after": rateLimit.RetryAfter,
			})
		case errors.As(err, &moderation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			// Transport failure: the optimistic copy exists locally.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(msg)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (s *APIServer) handleVote(w http.ResponseWriter, r *http.Request) {
	id := MessageID(mux.Vars(r)["id"])
	var body struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	newVote, delta := s.engine.Vote(r.Context(), id, ParseVoteDirection(body.Direction))
	writeJSON(w, map[string]interface{}{"vote": newVote.String(), "delta": delta})
}

func (s *APIServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := MessageID(mux.Vars(r)["id"])
	if err := s.engine.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, _ := host.Info()
	loadAvg, _ := load.Avg()
	vm, _ := mem.VirtualMemory()

	status := map[string]interface{}{
		"messages": s.engine.Reconciler().Len(),
		"time":     time.Now(),
	}
	if info != nil {
		status["hostname"] = info.Hostname
		status["uptime"] = info.Uptime
	}
	if loadAvg != nil {
		status["load"] = loadAvg.Load1
	}
	if vm != nil {
		status["mem_used_percent"] = vm.UsedPercent
	}
	writeJSON(w, status)
}

func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s.clientMu.Lock()
	s.clients[conn] = true
	total := len(s.clients)
	s.clientMu.Unlock()
	logrus.Printf("new websocket connection, %d clients", total)

	// Reads are keep-alive only; a read error means the client is gone.
	for {
		var msg interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			s.clientMu.Lock()
			delete(s.clients, conn)
			remaining := len(s.clients)
			s.clientMu.Unlock()
			logrus.Printf("websocket client disconnected, %d clients", remaining)
			return
		}
	}
}

func (s *APIServer) broadcastLoop() {
	for {
		var event PushEvent
		select {
		case event = <-s.broadcast:
		case <-s.quit:
			logrus.Debug("api server: broadcast loop stopped")
			return
		}
		// Snapshot the client set before writing so a concurrent
		// disconnect can't mutate the map mid-iteration.
		s.clientMu.RLock()
		snapshot := make([]*websocket.Conn, 0, len(s.clients))
		for client := range s.clients {
			snapshot = append(snapshot, client)
		}
		s.clientMu.RUnlock()

		for _, client := range snapshot {
			if err := client.WriteJSON(event); err != nil {
				client.Close()
				s.clientMu.Lock()
				delete(s.clients, client)
				s.clientMu.Unlock()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("response encode error: %v", err)
	}
}
