package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/httputil"
	"github.com/bbuddy/scan-relay-go/internal/middleware"
	"github.com/bbuddy/scan-relay-go/internal/service"
)

type ScanHandler struct {
	scanService *service.ScanService
}

func NewScanHandler(scanService *service.ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// POST /api/scan
// Forwards one scan to Barcode Buddy and relays its reply.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := service.ParseScanRequest(r.Form)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp, err := h.scanService.Relay(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		log.Error().Err(err).Str("barcode", req.Barcode).Msg("failed to relay scan")
		httputil.WriteError(w, err)
		return
	}

	writeUpstream(w, resp)
}

func (h *ScanHandler) HistoryRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	return r
}

// GET /api/scans
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := ParsePagination(r)

	events, total, err := h.scanService.History(r.Context(), pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list scan history")
		httputil.WriteError(w, err)
		return
	}

	formatted := make([]map[string]any, len(events))
	for i, e := range events {
		formatted[i] = formatScanEvent(e)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scans":  formatted,
		"total":  total,
		"limit":  pagination.Limit,
		"offset": pagination.Offset,
	})
}

// GET /api/scans/{id}
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.scanService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatScanEvent(*event))
}
