package controllers

import (
	"context"
	"net/http"
	"time"

	"prestige_server/utils"
)

// DefaultRequestTimeout bounds store calls made on behalf of a request.
const DefaultRequestTimeout = 5 * time.Second

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Server is running!"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to the server! This is the Prestige matching API."})
}

func withTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}
