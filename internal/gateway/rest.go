package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/questions"
)

// RoomCreator is the slice of the room operations the REST surface needs.
type RoomCreator interface {
	CreateRoom(ctx context.Context, rounds, timeoutSeconds int, midRoundDelaySeconds float64) models.Result
}

// RESTHandler serves the non-websocket endpoints: room creation, random
// questions and health checks.
type RESTHandler struct {
	rooms    RoomCreator
	provider questions.Provider
	manager  *ConnectionManager
}

// NewRESTHandler wires the REST endpoints.
func NewRESTHandler(rooms RoomCreator, provider questions.Provider, manager *ConnectionManager) *RESTHandler {
	return &RESTHandler{rooms: rooms, provider: provider, manager: manager}
}

// Register adds the REST routes to mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/create", h.createRoom)
	mux.HandleFunc("GET /api/questions/random/{n}", h.randomQuestions)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

func (h *RESTHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rounds, err := strconv.Atoi(q.Get("roundsNum"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("roundsNum must be an integer"))
		return
	}
	timeout, err := strconv.Atoi(q.Get("roundTimeout"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("roundTimeout must be an integer"))
		return
	}
	delay := 0.0
	if raw := q.Get("midRoundDelay"); raw != "" {
		delay, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.Fail("midRoundDelay must be a number"))
			return
		}
	}

	res := h.rooms.CreateRoom(r.Context(), rounds, timeout, delay)
	status := http.StatusOK
	if !res.Ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

func (h *RESTHandler) randomQuestions(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 || n > 10 {
		writeJSON(w, http.StatusBadRequest, models.Fail("size must be between 1 and 10"))
		return
	}
	qs, err := h.provider.Next(r.Context(), n)
	if err != nil {
		log.Error().Err(err).Msg("fetching random questions")
		writeJSON(w, http.StatusInternalServerError, models.Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, models.OK(qs))
}

func (h *RESTHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.OK(h.manager.Stats()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}
