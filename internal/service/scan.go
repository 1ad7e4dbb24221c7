package service

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/bbuddy/scan-relay-go/internal/errors"
	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/repository"
	"github.com/bbuddy/scan-relay-go/internal/sse"
)

const maxBarcodeLength = 256

// ScanRequest is a scan submitted by a scanner client.
type ScanRequest struct {
	Barcode          string
	Price            *float64
	BestBeforeInDays *int
}

// ParseScanRequest reads barcode, price and bestBeforeInDays from a submitted
// form. Blank optional fields are treated as absent.
func ParseScanRequest(form url.Values) (ScanRequest, error) {
	var req ScanRequest

	req.Barcode = strings.TrimSpace(form.Get("barcode"))
	if req.Barcode == "" {
		return req, apperrors.MissingRequired("barcode")
	}
	if len(req.Barcode) > maxBarcodeLength {
		return req, apperrors.InvalidInput("barcode", "too long")
	}

	if raw := strings.TrimSpace(form.Get("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			return req, apperrors.InvalidInput("price", "must be a number")
		}
		if price <= 0 {
			return req, apperrors.InvalidInput("price", "must be greater than 0")
		}
		req.Price = &price
	}

	if raw := strings.TrimSpace(form.Get("bestBeforeInDays")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return req, apperrors.InvalidInput("bestBeforeInDays", "must be a whole number")
		}
		if days < 0 {
			return req, apperrors.InvalidInput("bestBeforeInDays", "must not be negative")
		}
		req.BestBeforeInDays = &days
	}

	return req, nil
}

// EventPublisher fans relayed scans out to live listeners.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

type ScanService struct {
	buddy  BuddyClient
	repo   repository.ScanEventRepository
	events EventPublisher
}

func NewScanService(buddy BuddyClient, repo repository.ScanEventRepository, events EventPublisher) *ScanService {
	return &ScanService{
		buddy:  buddy,
		repo:   repo,
		events: events,
	}
}

// Relay forwards a scan to Barcode Buddy and returns its reply unchanged.
// A reply with a non-2xx status is not an error. The outcome is recorded in
// the scan history either way; history and event failures are logged only.
func (s *ScanService) Relay(ctx context.Context, req ScanRequest, clientIP string) (*UpstreamResponse, error) {
	resp, err := s.buddy.Scan(ctx, req)

	params := model.CreateScanEventParams{
		ID:               uuid.NewString(),
		Barcode:          req.Barcode,
		Price:            req.Price,
		BestBeforeInDays: req.BestBeforeInDays,
		ClientIP:         clientIP,
	}
	switch {
	case err != nil:
		params.Status = model.ScanStatusFailed
	case !resp.OK():
		params.Status = model.ScanStatusRejected
		params.UpstreamStatus = resp.StatusCode
	default:
		params.Status = model.ScanStatusForwarded
		params.UpstreamStatus = resp.StatusCode
	}

	s.record(ctx, params)

	if err != nil {
		return nil, apperrors.UpstreamUnavailable(err)
	}
	return resp, nil
}

func (s *ScanService) record(ctx context.Context, params model.CreateScanEventParams) {
	event, err := s.repo.Create(ctx, params)
	if err != nil {
		log.Warn().
			Err(err).
			Str("barcode", params.Barcode).
			Str("status", string(params.Status)).
			Msg("failed to record scan event")
		return
	}

	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, sse.TopicScans, sse.NewEvent("scan", event.ToSSEEventData())); err != nil {
		log.Warn().Err(err).Str("scanId", event.ID).Msg("failed to publish scan event")
	}
}

// History returns a page of relayed scans, newest first, and the total count.
func (s *ScanService) History(ctx context.Context, limit, offset int) ([]model.ScanEvent, int, error) {
	events, err := s.repo.FindRecent(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return events, total, nil
}

// Get returns one recorded scan.
func (s *ScanService) Get(ctx context.Context, id string) (*model.ScanEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("scan")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if event == nil {
		return nil, apperrors.NotFound("scan")
	}
	return event, nil
}
