// Package httpapi is Mission Control Core's transport front door: plain
// net/http routes for mission lifecycle and message posting, a gorilla/
// websocket endpoint for the Subscription Server, and /healthz + /metrics
// for operators, in the same raw http.NewServeMux style the teacher's
// gateway package uses.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/missions"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/queue"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/subscription"
)

// Server wires the core's components into an http.Handler.
type Server struct {
	cfg      config.Config
	store    eventstore.Store
	bus      *eventbus.Bus
	registry *missions.Registry
	queue    *queue.Queue
	rt       *runtime.Runtime
	logger   *observability.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// New builds the Server's routed mux.
func New(cfg config.Config, store eventstore.Store, bus *eventbus.Bus, registry *missions.Registry, q *queue.Queue, rt *runtime.Runtime, logger *observability.Logger, metrics *observability.Metrics) http.Handler {
	s := &Server{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		registry: registry,
		queue:    q,
		rt:       rt,
		logger:   logger,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/missions", s.handleMissionsCollection)
	mux.HandleFunc("/v1/missions/running", s.handleRunningMissions)
	mux.HandleFunc("/v1/missions/", s.handleMissionItem)
	mux.HandleFunc("/v1/queue", s.handleQueueCollection)
	mux.HandleFunc("/v1/queue/", s.handleQueueItem)
	mux.HandleFunc("/v1/tool-results", s.handleToolResult)
	mux.HandleFunc("/ws", s.handleSubscribe)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleMissionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		var params domain.CreateMissionParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, domain.NewError(domain.ErrProtocol, "malformed request body"))
			return
		}
		m, err := s.registry.Create(r.Context(), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRunningMissions serves GET /v1/missions/running: the Parallel
// Scheduler's running_snapshot (spec §4.7, §6 "Get running missions").
func (s *Server) handleRunningMissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.rt.RunningSnapshot())
}

// handleMissionItem dispatches /v1/missions/{id} and its sub-routes:
// messages, cancel, resume, status, queue, queue/clear, and events.
func (s *Server) handleMissionItem(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitMissionPath(r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		m, err := s.registry.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)

	case action == "messages" && r.Method == http.MethodPost:
		var body struct {
			Content string `json:"content"`
			Agent   string `json:"agent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.NewError(domain.ErrProtocol, "malformed request body"))
			return
		}
		msg, err := s.rt.PostMessage(r.Context(), id, body.Content, body.Agent)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, msg)

	case action == "cancel" && r.Method == http.MethodPost:
		if err := s.rt.Cancel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "resume" && r.Method == http.MethodPost:
		var body struct {
			SkipMessage bool `json:"skip_message"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, domain.NewError(domain.ErrProtocol, "malformed request body"))
				return
			}
		}
		m, err := s.rt.Resume(r.Context(), id, body.SkipMessage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)

	case action == "status" && r.Method == http.MethodPost:
		var body struct {
			Status domain.MissionStatus `json:"status"`
			Reason string               `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, domain.NewError(domain.ErrProtocol, "malformed request body"))
			return
		}
		m, err := s.registry.SetStatus(r.Context(), id, body.Status, body.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)

	case action == "queue" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List(id))

	case action == "queue/clear" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, map[string]int{"cleared": s.queue.Clear(id)})

	case action == "events" && r.Method == http.MethodGet:
		opts := eventstore.ReadRangeOptions{}
		if v := r.URL.Query().Get("offset"); v != "" {
			n, _ := strconv.Atoi(v)
			opts.Offset = n
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, _ := strconv.Atoi(v)
			opts.Limit = n
		}
		events, err := s.store.ReadRange(r.Context(), id, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleQueueCollection serves GET /v1/queue?mission_id=... (spec §6 "List
// queue"); an empty/absent mission_id lists every pending message.
func (s *Server) handleQueueCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.queue.List(r.URL.Query().Get("mission_id")))
}

// handleQueueItem serves DELETE /v1/queue/{message_id} (spec §6 "Remove from
// queue").
func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	const prefix = "/v1/queue/"
	if r.Method != http.MethodDelete || len(r.URL.Path) <= len(prefix) {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Path[len(prefix):]
	if err := s.queue.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToolResult serves POST /v1/tool-results (spec §6 "Post tool
// result"): tool_call_id, name, result -> releases the waiter suspending the
// mission's Agent Loop worker.
func (s *Server) handleToolResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ToolCallID string `json:"tool_call_id"`
		Name       string `json:"name"`
		Result     string `json:"result"`
		IsError    bool   `json:"is_error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.NewError(domain.ErrProtocol, "malformed request body"))
		return
	}
	if body.ToolCallID == "" {
		writeError(w, domain.NewError(domain.ErrProtocol, "tool_call_id is required"))
		return
	}
	if err := s.rt.PostToolResult(body.ToolCallID, body.Name, body.Result, body.IsError); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscribe upgrades to a WebSocket and forwards a subscription
// Session's replay-then-tail stream as JSON frames, per spec §4.9.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("mission_id")
	if filter == "" {
		filter = "all"
	}

	var since *int64
	if v := r.URL.Query().Get("since_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, domain.NewError(domain.ErrProtocol, "since_sequence must be an integer"))
			return
		}
		since = &n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	sess := subscription.Open(r.Context(), s.store, s.bus, subscription.Config{
		Filter:         filter,
		SinceSequence:  since,
		KeepaliveEvery: s.cfg.Keepalive(),
		ReplayPageSize: s.cfg.Mission.EventPageLimit,
	}, s.logger, s.metrics)
	defer sess.Close()

	for msg := range sess.Out() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func splitMissionPath(path string) (id, action string, ok bool) {
	const prefix = "/v1/missions/"
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return rest, "", true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var kind domain.ErrKind
	var derr *domain.Error
	if errors.As(err, &derr) {
		kind = derr.Kind
		switch kind {
		case domain.ErrMissionNotFound, domain.ErrNotFound:
			status = http.StatusNotFound
		case domain.ErrInvalidTransition, domain.ErrProtocol, domain.ErrMissionUnknown:
			status = http.StatusBadRequest
		case domain.ErrQueueBusy, domain.ErrCapacity:
			status = http.StatusConflict
		case domain.ErrCancelled:
			status = http.StatusGone
		}
	}
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%v", err), "kind": string(kind)})
}
