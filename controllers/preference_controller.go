package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"prestige_server/models"
	"prestige_server/services"
	"prestige_server/utils"
)

// PreferenceController handles profile registration, swipes and preference reads
type PreferenceController struct {
	PreferenceService *services.PreferenceService
	Timeout           time.Duration
	validate          *validator.Validate
}

// NewPreferenceController creates a new PreferenceController instance
func NewPreferenceController(preferenceService *services.PreferenceService, timeout time.Duration) *PreferenceController {
	return &PreferenceController{
		PreferenceService: preferenceService,
		Timeout:           timeout,
		validate:          validator.New(),
	}
}

// RegisterProfile makes a profile id known to the matching core
func (pc *PreferenceController) RegisterProfile(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ProfileID string `json:"profileId" validate:"required,max=128"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := pc.validate.Struct(request); err != nil {
		utils.WriteError(w, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidArgument))
		return
	}

	ctx, cancel := withTimeout(r, pc.Timeout)
	defer cancel()

	created, err := pc.PreferenceService.RegisterProfile(ctx, request.ProfileID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.WriteJSONResponse(w, status, map[string]interface{}{
		"profileId": request.ProfileID,
		"created":   created,
	})
}

// RecordSwipe turns a positive swipe into a preference. Negative swipes are accepted and ignored.
func (pc *PreferenceController) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	var event models.SwipeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := pc.validate.Struct(event); err != nil {
		utils.WriteError(w, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidArgument))
		return
	}

	if !event.IsPositive {
		utils.WriteJSONResponse(w, http.StatusAccepted, map[string]string{"message": "Negative swipe ignored"})
		return
	}

	ctx, cancel := withTimeout(r, pc.Timeout)
	defer cancel()

	result, err := pc.PreferenceService.RecordPreference(ctx, event.ActorID, event.TargetID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

// GetPreferences returns the ordered preference sequence of a profile
func (pc *PreferenceController) GetPreferences(w http.ResponseWriter, r *http.Request) {
	profileID := mux.Vars(r)["profileId"]

	ctx, cancel := withTimeout(r, pc.Timeout)
	defer cancel()

	record, err := pc.PreferenceService.GetPreferences(ctx, profileID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, record)
}
