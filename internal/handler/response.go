package handler

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/bbuddy/scan-relay-go/internal/errors"
	"github.com/bbuddy/scan-relay-go/internal/httputil"
	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeUpstream relays a Barcode Buddy reply unchanged.
func writeUpstream(w http.ResponseWriter, resp *service.UpstreamResponse) {
	httputil.WriteRaw(w, resp.StatusCode, resp.ContentType, resp.Body)
}

// parseForm accepts both urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(32 << 10)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "Request body too large")
	}
	return apperrors.InvalidInput("form", "could not be parsed")
}

func formatScanEvent(e model.ScanEvent) map[string]any {
	return map[string]any{
		"id":               e.ID,
		"barcode":          e.Barcode,
		"price":            e.Price,
		"bestBeforeInDays": e.BestBeforeInDays,
		"status":           e.Status,
		"upstreamStatus":   e.UpstreamStatus,
		"createdAt":        e.CreatedAt.Format(time.RFC3339),
	}
}
