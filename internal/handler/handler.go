package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
)

// State exposes the balancer state the admin endpoints report.
type State interface {
	Policy() policy.Policy
	Table() *assignment.Table
}

type AdminHandler struct {
	logger *slog.Logger
	state  State
}

type assignmentsResponse struct {
	ServerPool  assignment.ServerPool   `json:"server_pool"`
	Cursor      int                     `json:"cursor"`
	Connections int                     `json:"connections"`
	Assignments []assignment.Assignment `json:"assignments"`
}

func NewAdminHandler(logger *slog.Logger, state State) *AdminHandler {
	return &AdminHandler{
		logger: logger,
		state:  state,
	}
}

// Assignments lists every connection with its server port.
func (h *AdminHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Table().Snapshot()

	h.writeJSON(w, assignmentsResponse{
		ServerPool:  snap.Pool,
		Cursor:      snap.Cursor,
		Connections: len(snap.Assignments),
		Assignments: snap.Assignments,
	})
}

// Assignment reports the server port of the connection named by the
// flow_key path value. Unknown keys give 404 and never create an entry.
func (h *AdminHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("flow_key")
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid flow key %q", raw), http.StatusBadRequest)
		return
	}

	key := classifier.FlowKey(n)
	server, ok := h.state.Table().Lookup(key)
	if !ok {
		http.Error(w, fmt.Sprintf("no assignment for flow key %d", key), http.StatusNotFound)
		return
	}

	h.writeJSON(w, assignment.Assignment{Key: key, Server: server})
}

// Policy returns the current policy in NetKAT JSON.
func (h *AdminHandler) Policy(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.state.Policy())
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
