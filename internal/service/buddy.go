package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/config"
)

const apiKeyHeader = "BBUDDY-API-KEY"

// UpstreamResponse is a Barcode Buddy reply relayed as-is to the caller.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (r *UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// BuddyClient talks to the Barcode Buddy API.
type BuddyClient interface {
	Scan(ctx context.Context, req ScanRequest) (*UpstreamResponse, error)
	GetMode(ctx context.Context) (*UpstreamResponse, error)
	SetMode(ctx context.Context, state int) (*UpstreamResponse, error)
}

type BuddyService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBuddyService(cfg *config.Config) *BuddyService {
	return NewBuddyServiceWithURL(cfg.BuddyURL(""), cfg.BuddyAPIKey)
}

// NewBuddyServiceWithURL targets an explicit base URL such as "https://buddy.local".
func NewBuddyServiceWithURL(baseURL, apiKey string) *BuddyService {
	return &BuddyService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: config.UpstreamTimeout,
		},
	}
}

func (s *BuddyService) Scan(ctx context.Context, req ScanRequest) (*UpstreamResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := [][2]string{{"barcode", req.Barcode}}
	if req.Price != nil {
		fields = append(fields, [2]string{"price", strconv.FormatFloat(*req.Price, 'f', -1, 64)})
	}
	if req.BestBeforeInDays != nil {
		fields = append(fields, [2]string{"bestBeforeInDays", strconv.Itoa(*req.BestBeforeInDays)})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}

	return s.do(ctx, http.MethodPost, "/api/action/scan", writer.FormDataContentType(), &body)
}

func (s *BuddyService) GetMode(ctx context.Context) (*UpstreamResponse, error) {
	return s.do(ctx, http.MethodGet, "/api/state/getmode", "", nil)
}

func (s *BuddyService) SetMode(ctx context.Context, state int) (*UpstreamResponse, error) {
	form := url.Values{}
	form.Set("state", strconv.Itoa(state))

	return s.do(ctx, http.MethodPost, "/api/state/setmode", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (s *BuddyService) do(ctx context.Context, method, path, contentType string, body io.Reader) (*UpstreamResponse, error) {
	endpoint := s.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(apiKeyHeader, s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("url", endpoint).
			Dur("elapsed", elapsed).
			Msg("barcode buddy request error")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, config.UpstreamMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	log.Info().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("forwarded request to barcode buddy")

	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
