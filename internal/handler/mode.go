package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/audit"
	"github.com/bbuddy/scan-relay-go/internal/httputil"
	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/service"
)

type ModeHandler struct {
	modeService *service.ModeService
}

func NewModeHandler(modeService *service.ModeService) *ModeHandler {
	return &ModeHandler{modeService: modeService}
}

func (h *ModeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/getmode", h.GetMode)
	r.Post("/setmode", h.SetMode)

	return r
}

// GET /api/state/getmode
func (h *ModeHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	resp, err := h.modeService.GetMode(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get mode")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventModeChange,
		Details: map[string]interface{}{"state": state, "status": resp.StatusCode},
	})
	writeUpstream(w, resp)
}

// POST /api/state/setmode
func (h *ModeHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		httputil.WriteError(w, err)
		return
	}

	state := r.FormValue("state")
	resp, err := h.modeService.SetMode(r.Context(), state)
	if errors.Is(err, service.ErrInvalidState) {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventModeRejected,
			Details: map[string]interface{}{"state": state},
		})
		writeJSON(w, http.StatusBadRequest, model.InvalidStateReply())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to set mode")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventModeChange,
		Details: map[string]interface{}{"state": state, "status": resp.StatusCode},
	})
	writeUpstream(w, resp)
}
