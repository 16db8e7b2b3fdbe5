// Package backend talks to the external rendering/OCR service. Video
// decoding, text detection, and effect rendering live behind this contract;
// the editor never touches them directly.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/pkg/models"
)

// ErrUnreachable marks failures where the backend could not be contacted at
// all, as opposed to a response that rejected the input.
var ErrUnreachable = errors.New("backend unreachable")

// RejectedError carries the backend's verbatim rejection reason so it can be
// surfaced to the user unchanged.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Reason)
}

// Client is the HTTP client for the rendering/OCR backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend").Logger(),
	}
}

// FetchFrame retrieves the raw frame at the given index.
func (c *Client) FetchFrame(ctx context.Context, sourceID string, frameIndex int) ([]byte, string, error) {
	u := fmt.Sprintf("%s/frames/%s/%d", c.baseURL, url.PathEscape(sourceID), frameIndex)
	return c.getImage(ctx, "backend.fetch_frame", u)
}

// FetchPreview retrieves a frame rendered with a region of interest and
// scale factor applied.
func (c *Client) FetchPreview(ctx context.Context, sourceID string, frameIndex int, region models.Rect, scale float64) ([]byte, string, error) {
	u := fmt.Sprintf("%s/previews/%s/%d?x=%d&y=%d&w=%d&h=%d&scale=%g",
		c.baseURL, url.PathEscape(sourceID), frameIndex,
		region.X, region.Y, region.Width, region.Height, scale)
	return c.getImage(ctx, "backend.fetch_preview", u)
}

// FetchEffectPreview retrieves a frame with the visual effect applied over
// the active annotation's region.
func (c *Client) FetchEffectPreview(ctx context.Context, sourceID string, frameIndex int, params models.EffectParams, activeText string) ([]byte, string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"params":      params,
		"active_text": activeText,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal effect params: %w", err)
	}

	u := fmt.Sprintf("%s/effects/%s/%d", c.baseURL, url.PathEscape(sourceID), frameIndex)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doImage(req, "backend.fetch_effect_preview")
}

// StartJob starts the annotation-extraction job for a source, scoped to the
// given client identifier. Push events arrive on the broker under that ID.
func (c *Client) StartJob(ctx context.Context, clientID, sourceID string, params models.EffectParams) error {
	body, err := json.Marshal(map[string]interface{}{
		"client_id": clientID,
		"source_id": sourceID,
		"params":    params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}
	return c.postJSON(ctx, "backend.start_job", c.baseURL+"/jobs/start", body)
}

// StopJob stops the extraction job for a client identifier.
func (c *Client) StopJob(ctx context.Context, clientID string) error {
	body, err := json.Marshal(map[string]string{"client_id": clientID})
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}
	return c.postJSON(ctx, "backend.stop_job", c.baseURL+"/jobs/stop", body)
}

// Probe asks the backend for source metadata (duration, fps, geometry).
func (c *Client) Probe(ctx context.Context, sourceID string) (*models.Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/sources/%s", c.baseURL, url.PathEscape(sourceID)), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readRejection(resp)
	}

	var src models.Source
	if err := json.NewDecoder(resp.Body).Decode(&src); err != nil {
		return nil, fmt.Errorf("failed to decode source metadata: %w", err)
	}
	return &src, nil
}

func (c *Client) getImage(ctx context.Context, op, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	return c.doImage(req, op)
}

func (c *Client) doImage(req *http.Request, op string) ([]byte, string, error) {
	span, ctx := opentracing.StartSpanFromContext(req.Context(), op)
	defer span.Finish()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetTag("error", true)
		return nil, "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetTag("error", true)
		return nil, "", readRejection(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) postJSON(ctx context.Context, op, u string, body []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetTag("error", true)
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		span.SetTag("error", true)
		return readRejection(resp)
	}
	return nil
}

func classifyTransportErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

func readRejection(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := string(bytes.TrimSpace(data))
	if reason == "" {
		reason = resp.Status
	}
	return &RejectedError{Status: resp.StatusCode, Reason: reason}
}
