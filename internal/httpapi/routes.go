package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Rooms     Rooms
	WebSocket http.Handler
	Metrics   http.Handler
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Rooms))
	r.Get("/rooms/{code}", GetRoom(d.Rooms))
	r.Get("/healthz", Healthz)
	r.Handle("/ws", d.WebSocket)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	return r
}
