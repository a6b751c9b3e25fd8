package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/guess-the-track-backend/pkg/types"
)

// Rooms is the slice of the gateway the REST surface needs.
type Rooms interface {
	Create(ctx context.Context) types.CreateAck
	Size(ctx context.Context, code string) int
	Redirect(ctx context.Context, code string) types.RedirectAck
}

type roomResponse struct {
	Code string `json:"code"`
	Size int    `json:"size"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func CreateRoom(rooms Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ack := rooms.Create(r.Context())
		if !ack.OK {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ack.Error})
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: ack.RoomCode})
	}
}

func GetRoom(rooms Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if ack := rooms.Redirect(r.Context(), code); !ack.OK {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: ack.Error})
			return
		}
		writeJSON(w, http.StatusOK, roomResponse{Code: code, Size: rooms.Size(r.Context(), code)})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
