package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"prestige_server/models"
	"prestige_server/services"
	"prestige_server/utils"
)

// MatchController handles HTTP requests for matching runs and published matches
type MatchController struct {
	MatchRunner    *services.MatchRunner
	MatchPublisher *services.MatchPublisher
	Timeout        time.Duration
}

// NewMatchController creates a new MatchController instance
func NewMatchController(runner *services.MatchRunner, publisher *services.MatchPublisher, timeout time.Duration) *MatchController {
	return &MatchController{MatchRunner: runner, MatchPublisher: publisher, Timeout: timeout}
}

// RunMatching executes a matching run synchronously. The run carries its own
// timeout, so only the client disconnecting cancels it early.
func (mc *MatchController) RunMatching(w http.ResponseWriter, r *http.Request) {
	run, err := mc.MatchRunner.Run(r.Context())
	if err != nil {
		if run != nil && errors.Is(err, models.ErrDidNotConverge) {
			utils.WriteJSONResponse(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error": err.Error(),
				"run":   run,
			})
			return
		}
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Matching run published",
		"run":     run,
	})
}

// GetMatch returns the current partner of a profile
func (mc *MatchController) GetMatch(w http.ResponseWriter, r *http.Request) {
	profileID := mux.Vars(r)["profileId"]

	ctx, cancel := withTimeout(r, mc.Timeout)
	defer cancel()

	match, err := mc.MatchPublisher.GetMatch(ctx, profileID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, match)
}
