package routes

import (
	"time"

	"prestige_server/controllers"
	"prestige_server/services"

	"github.com/gorilla/mux"
)

// RegisterPreferenceRoutes sets up profile registration, swipe and preference routes under /api
func RegisterPreferenceRoutes(r *mux.Router, preferenceService *services.PreferenceService, timeout time.Duration) {
	controller := controllers.NewPreferenceController(preferenceService, timeout)

	apiRouter := r.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/profiles", controller.RegisterProfile).Methods("POST")
	apiRouter.HandleFunc("/swipes", controller.RecordSwipe).Methods("POST")
	apiRouter.HandleFunc("/preferences/{profileId}", controller.GetPreferences).Methods("GET")
}
