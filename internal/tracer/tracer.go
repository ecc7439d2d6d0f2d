package tracer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gmfloripa/patrol-relay/internal/tracer"

// TransportStatusText is recorded when no HTTP response was received.
const TransportStatusText = "Transport Error"

// RequestSpec describes one outbound call. At most one of JSON and Form is set.
type RequestSpec struct {
	Method string
	Header http.Header
	JSON   any
	Form   *MultipartForm
}

// Response is the upstream reply with its body already read.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	// BodyErr is set when the body could not be read; Body is then partial.
	BodyErr error
	// Parsed is the same body as recorded in the trace entry.
	Parsed Body
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportError is returned when a call produced no HTTP response.
type TransportError struct {
	Step string
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Step, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Redactor rewrites a header value before it is recorded.
type Redactor func(name, value string) string

// HeaderRedactor masks the named headers (case-insensitive).
func HeaderRedactor(names ...string) Redactor {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return func(name, value string) string {
		if _, ok := set[strings.ToLower(name)]; ok {
			return "[REDACTED]"
		}
		return value
	}
}

// Observer is notified after every traced call.
type Observer interface {
	ObserveCall(step string, status int, d time.Duration)
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithHTTPClient sets the client used for outbound calls.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tracer) {
		t.client = c
	}
}

// WithRedactor installs a header redactor. Headers are recorded verbatim
// without one.
func WithRedactor(r Redactor) Option {
	return func(t *Tracer) {
		t.redact = r
	}
}

// WithObserver registers a call observer.
func WithObserver(o Observer) Option {
	return func(t *Tracer) {
		t.observer = o
	}
}

// Tracer performs outbound calls and records a trace entry for each.
type Tracer struct {
	client   *http.Client
	redact   Redactor
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		client: http.DefaultClient,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do executes one call and appends its entry to log before returning, so
// the entry is present whatever the caller later decides about the result.
// A non-nil error is returned only when the request could not be built or
// no response arrived; it is then a *TransportError or a build error.
func (t *Tracer) Do(ctx context.Context, log *Log, step, url string, spec RequestSpec) (*Response, Entry, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	header := spec.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body, requestBody, contentType, err := buildBody(spec)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%s: build request body: %w", step, err)
	}

	ctx, span := t.tracer.Start(ctx, step, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, Entry{}, fmt.Errorf("%s: create request: %w", step, err)
	}
	req.Header = header.Clone()
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := t.now()
	entry := Entry{
		Step:           step,
		URL:            url,
		Method:         method,
		RequestHeaders: flattenHeaders(header, false, t.redact),
		RequestBody:    requestBody,
		Timestamp:      started.UTC(),
	}

	resp, err := t.client.Do(req)
	if err != nil {
		entry.DurationMs = t.now().Sub(started).Milliseconds()
		entry.ResponseStatusText = TransportStatusText
		entry.ResponseHeaders = map[string]string{}
		log.Append(entry)
		t.observe(step, 0, t.now().Sub(started))

		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, entry, &TransportError{Step: step, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	elapsed := t.now().Sub(started)

	parsed := ParseBody(data)
	if readErr != nil {
		parsed = Unreadable()
	}

	entry.ResponseStatus = resp.StatusCode
	entry.ResponseStatusText = statusText(resp)
	entry.ResponseHeaders = flattenHeaders(resp.Header, true, t.redact)
	entry.ResponseBody = parsed
	entry.DurationMs = elapsed.Milliseconds()
	log.Append(entry)
	t.observe(step, resp.StatusCode, elapsed)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, entry.ResponseStatusText)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     entry.ResponseStatusText,
		Header:     resp.Header,
		Body:       data,
		BodyErr:    readErr,
		Parsed:     parsed,
	}, entry, nil
}

func (t *Tracer) observe(step string, status int, d time.Duration) {
	if t.observer != nil {
		t.observer.ObserveCall(step, status, d)
	}
}

func buildBody(spec RequestSpec) ([]byte, Body, string, error) {
	switch {
	case spec.Form != nil:
		data, contentType, err := spec.Form.Encode()
		if err != nil {
			return nil, Body{}, "", err
		}
		return data, spec.Form.describe(), contentType, nil
	case spec.JSON != nil:
		data, err := json.Marshal(spec.JSON)
		if err != nil {
			return nil, Body{}, "", err
		}
		return data, ParseBody(data), "application/json", nil
	default:
		return nil, Body{}, "", nil
	}
}

// statusText strips the numeric code from resp.Status ("200 OK" -> "OK").
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
