package routes

import (
	"time"

	"prestige_server/controllers"
	"prestige_server/services"

	"github.com/gorilla/mux"
)

// RegisterMatchRoutes sets up routes for matching runs and published matches under /api/match
func RegisterMatchRoutes(r *mux.Router, runner *services.MatchRunner, publisher *services.MatchPublisher, timeout time.Duration) {
	controller := controllers.NewMatchController(runner, publisher, timeout)

	// Create a subrouter for /api/match
	matchRouter := r.PathPrefix("/api/match").Subrouter()

	matchRouter.HandleFunc("/run", controller.RunMatching).Methods("POST")
	matchRouter.HandleFunc("/{profileId}", controller.GetMatch).Methods("GET")
}
