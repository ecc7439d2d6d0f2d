package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/server"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

// LocalRelayer calls the relay service in process. It never returns an
// error.
type LocalRelayer struct {
	Service *relay.Service
}

// Relay implements Relayer.
func (l LocalRelayer) Relay(ctx context.Context, recipientID string, payload domain.Payload) (domain.RelayResult, error) {
	return l.Service.Relay(ctx, relay.Request{
		RecipientID: recipientID,
		File:        payload.File(),
		Message:     payload.Caption(),
	}), nil
}

// HTTPRelayerOption configures an HTTPRelayer.
type HTTPRelayerOption func(*HTTPRelayer)

// WithHTTPClient sets the client used to reach the relay server.
func WithHTTPClient(c *http.Client) HTTPRelayerOption {
	return func(r *HTTPRelayer) {
		r.client = c
	}
}

// WithRequestID sets the X-Request-ID sent with every call so server logs
// can be correlated with one CLI broadcast.
func WithRequestID(id string) HTTPRelayerOption {
	return func(r *HTTPRelayer) {
		r.requestID = id
	}
}

// HTTPRelayer posts each relay to a running server's send-file endpoint.
type HTTPRelayer struct {
	baseURL   string
	client    *http.Client
	requestID string
}

// NewHTTPRelayer creates a relayer for the server at baseURL.
func NewHTTPRelayer(baseURL string, opts ...HTTPRelayerOption) *HTTPRelayer {
	r := &HTTPRelayer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns the send-file URL.
func (r *HTTPRelayer) Endpoint() string {
	return r.baseURL + relay.SendFilePath
}

// Relay implements Relayer. The envelope is decoded whatever the status
// code; only a transport failure or an undecodable body is an error.
func (r *HTTPRelayer) Relay(ctx context.Context, recipientID string, payload domain.Payload) (domain.RelayResult, error) {
	form := tracer.NewMultipartForm()
	if f := payload.File(); f != nil {
		form.AddFile(relay.FieldFile, tracer.FilePart{FileName: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	form.AddField(relay.FieldUserID, recipientID)
	if payload.Caption() != "" {
		form.AddField(relay.FieldMessage, payload.Caption())
	}

	body, contentType, err := form.Encode()
	if err != nil {
		return domain.RelayResult{}, fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return domain.RelayResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if r.requestID != "" {
		req.Header.Set(server.RequestIDHeader, r.requestID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.RelayResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RelayResult{}, fmt.Errorf("read response: %w", err)
	}

	var res domain.RelayResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.RelayResult{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return res, nil
}
