package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bbuddy/scan-relay-go/internal/config"
	"github.com/bbuddy/scan-relay-go/internal/model"
	"github.com/bbuddy/scan-relay-go/internal/scanner"
)

const maxResponseBytes = 1 << 20

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// ErrMalformedResponse is returned when a mode reply cannot be read.
var ErrMalformedResponse = errors.New("malformed response")

// Client talks to the scan relay on behalf of a scanning session.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: config.RelayTimeout,
		},
	}
}

// Report implements scanner.Reporter.
func (c *Client) Report(ctx context.Context, scan scanner.Scan) error {
	return c.PostScan(ctx, scan)
}

// PostScan submits one scan. Price and bestBeforeInDays are sent only when set.
func (c *Client) PostScan(ctx context.Context, scan scanner.Scan) error {
	fields := [][2]string{{"barcode", scan.Barcode}}
	if scan.Price != nil {
		fields = append(fields, [2]string{"price", scan.PriceString()})
	}
	if scan.BestBeforeInDays != nil {
		fields = append(fields, [2]string{"bestBeforeInDays", strconv.Itoa(*scan.BestBeforeInDays)})
	}

	status, body, err := c.postForm(ctx, "/api/scan", encodeForm(fields))
	if err != nil {
		return err
	}
	if !ok(status) {
		log.Debug().Int("status", status).Bytes("body", body).Msg("scan rejected by relay")
		return &StatusError{StatusCode: status, Message: "Scan failed"}
	}
	return nil
}

// GetMode reads the current inventory mode.
func (c *Client) GetMode(ctx context.Context) (model.Mode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/state/getmode", nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	if !ok(status) {
		return 0, &StatusError{StatusCode: status, Message: "Failed to get mode"}
	}

	var replies []model.ModeResponse
	if err := json.Unmarshal(body, &replies); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(replies) == 0 || replies[0].Data == nil || replies[0].Data.Mode == nil {
		return 0, fmt.Errorf("%w: no mode in reply", ErrMalformedResponse)
	}
	return model.Mode(*replies[0].Data.Mode), nil
}

// SetMode changes the inventory mode. A rejection carries the relay's
// result.result message, or "Unknown error" when there is none.
func (c *Client) SetMode(ctx context.Context, mode model.Mode) error {
	status, body, err := c.postForm(ctx, "/api/state/setmode", encodeForm([][2]string{{"state", strconv.Itoa(int(mode))}}))
	if err != nil {
		return err
	}
	if !ok(status) {
		return &StatusError{StatusCode: status, Message: resultMessage(body)}
	}
	return nil
}

// resultMessage digs result.result out of an error body. The relay's own
// validation wraps the envelope in a list.
func resultMessage(body []byte) string {
	var single model.ResultEnvelope
	if err := json.Unmarshal(body, &single); err == nil && single.Result != nil && single.Result.Result != "" {
		return single.Result.Result
	}

	var list []model.ResultEnvelope
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].Result != nil && list[0].Result.Result != "" {
		return list[0].Result.Result
	}
	return "Unknown error"
}

// encodeForm url-encodes fields in the given order, unlike url.Values.
func encodeForm(fields [][2]string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f[1]))
	}
	return b.String()
}

func (c *Client) postForm(ctx context.Context, path string, form string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().
			Err(err).
			Str("url", req.URL.String()).
			Dur("elapsed", time.Since(start)).
			Msg("relay request failed")
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	return resp.StatusCode, body, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
