package tracer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind BodyKind
	}{
		{name: "json object", in: `{"challenge":"abc"}`, kind: BodyStructured},
		{name: "json array", in: `[1,2]`, kind: BodyStructured},
		{name: "plain text", in: "Bad Gateway", kind: BodyRaw},
		{name: "empty", in: "", kind: BodyRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBody([]byte(tt.in))
			if got.Kind() != tt.kind {
				t.Errorf("ParseBody(%q).Kind() = %v, want %v", tt.in, got.Kind(), tt.kind)
			}
		})
	}
}

func TestBodyJSONRoundTrip(t *testing.T) {
	bodies := []Body{
		{},
		Structured(map[string]any{"id": "x"}),
		Raw("oops"),
		Unreadable(),
	}

	for _, b := range bodies {
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Marshal(%v) error = %v", b.Kind(), err)
		}
		var got Body
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if got.Kind() != b.Kind() {
			t.Errorf("round trip kind = %v, want %v (json %s)", got.Kind(), b.Kind(), data)
		}
	}
}

func TestTracerDoRecordsJSONCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.Header().Set("X-Upstream", "una")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	log := NewLog()
	tr := New(WithHTTPClient(srv.Client()))

	resp, entry, err := tr.Do(context.Background(), log, "1. Step", srv.URL+"/x", RequestSpec{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/json"}},
		JSON:   map[string]string{"login": "pesto"},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if !resp.OK() {
		t.Errorf("OK() = false for status %d", resp.StatusCode)
	}
	if log.Len() != 1 {
		t.Fatalf("log length = %d, want 1", log.Len())
	}
	if entry.ResponseStatus != http.StatusCreated || entry.ResponseStatusText != "Created" {
		t.Errorf("status = %d %q", entry.ResponseStatus, entry.ResponseStatusText)
	}
	if entry.ResponseHeaders["x-upstream"] != "una" {
		t.Errorf("response headers = %v, want lower-cased x-upstream", entry.ResponseHeaders)
	}
	if entry.RequestHeaders["Content-Type"] != "application/json" {
		t.Errorf("request headers = %v", entry.RequestHeaders)
	}
	reqBody, ok := entry.RequestBody.Value().(map[string]any)
	if !ok || reqBody["login"] != "pesto" {
		t.Errorf("request body = %#v", entry.RequestBody.Value())
	}
	if entry.ResponseBody.Kind() != BodyStructured {
		t.Errorf("response body kind = %v", entry.ResponseBody.Kind())
	}
	if entry.Method != http.MethodPost || entry.Step != "1. Step" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestTracerDoRawResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>upstream down</html>")
	}))
	defer srv.Close()

	log := NewLog()
	resp, entry, err := New(WithHTTPClient(srv.Client())).Do(context.Background(), log, "s", srv.URL, RequestSpec{})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.OK() {
		t.Error("OK() = true for 502")
	}
	if entry.ResponseBody.Kind() != BodyRaw {
		t.Errorf("body kind = %v, want raw", entry.ResponseBody.Kind())
	}
	if entry.Method != http.MethodGet {
		t.Errorf("method = %q, want GET default", entry.Method)
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingBody) Close() error             { return nil }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTracerDoUnreadableBody(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{},
			Body:       failingBody{},
			Request:    r,
		}, nil
	})}

	log := NewLog()
	resp, entry, err := New(WithHTTPClient(client)).Do(context.Background(), log, "s", "http://una.test/x", RequestSpec{})
	if err != nil {
		t.Fatalf("Do() error = %v, tracing must not fail the call", err)
	}
	if resp.BodyErr == nil {
		t.Error("BodyErr = nil, want read error")
	}
	if entry.ResponseBody.Kind() != BodyUnreadable || entry.ResponseBody.Value() != UnreadableBody {
		t.Errorf("body = %v %v", entry.ResponseBody.Kind(), entry.ResponseBody.Value())
	}
}

func TestTracerDoTransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}

	log := NewLog()
	_, entry, err := New(WithHTTPClient(client)).Do(context.Background(), log, "1. Step", "http://una.test/x", RequestSpec{Method: http.MethodPost})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if log.Len() != 1 {
		t.Fatalf("log length = %d, want entry recorded on transport failure", log.Len())
	}
	if entry.ResponseStatus != 0 || entry.ResponseStatusText != TransportStatusText {
		t.Errorf("entry status = %d %q", entry.ResponseStatus, entry.ResponseStatusText)
	}
}

func TestTracerDoWithoutLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	resp, entry, err := New(WithHTTPClient(srv.Client())).Do(context.Background(), nil, "1. Step", srv.URL, RequestSpec{Method: http.MethodGet})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !resp.OK() || entry.ResponseStatus != http.StatusOK {
		t.Errorf("status = %d", entry.ResponseStatus)
	}

	var log *Log
	log.Append(entry)
	if log.Len() != 0 || len(log.Entries()) != 0 {
		t.Errorf("nil log recorded entries")
	}
}

func TestTracerDoMultipartForm(t *testing.T) {
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("MultipartReader() error = %v", err)
			return
		}
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			order = append(order, p.FormName())
			if p.FormName() == "file" && p.Header.Get("Content-Type") != "application/pdf" {
				t.Errorf("file part Content-Type = %q", p.Header.Get("Content-Type"))
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	form := NewMultipartForm().
		AddFile("file", FilePart{FileName: "boletim.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}).
		AddField("chatMessage", `{"id":"m1","to":"355067"}`)

	log := NewLog()
	_, entry, err := New(WithHTTPClient(srv.Client())).Do(context.Background(), log, "3. Send File Attachment", srv.URL, RequestSpec{
		Method: http.MethodPost,
		Form:   form,
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if strings.Join(order, ",") != "file,chatMessage" {
		t.Errorf("part order = %v, want file first", order)
	}

	desc, ok := entry.RequestBody.Value().(map[string]any)
	if !ok {
		t.Fatalf("request body = %#v", entry.RequestBody.Value())
	}
	file, _ := desc["file"].(map[string]any)
	if file["type"] != "File" || file["name"] != "boletim.pdf" || file["size"] != 8 || file["mimeType"] != "application/pdf" {
		t.Errorf("file description = %#v", file)
	}
	msg, _ := desc["chatMessage"].(map[string]any)
	if msg["to"] != "355067" {
		t.Errorf("chatMessage description = %#v", msg)
	}
}

func TestHeaderRedactor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "__iunasid=secret; Path=/")
	}))
	defer srv.Close()

	log := NewLog()
	tr := New(WithHTTPClient(srv.Client()), WithRedactor(HeaderRedactor("cookie", "set-cookie")))
	_, entry, err := tr.Do(context.Background(), log, "s", srv.URL, RequestSpec{
		Header: http.Header{"Cookie": {"__iunasid=secret;"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if entry.RequestHeaders["Cookie"] != "[REDACTED]" {
		t.Errorf("request cookie = %q", entry.RequestHeaders["Cookie"])
	}
	if entry.ResponseHeaders["set-cookie"] != "[REDACTED]" {
		t.Errorf("response set-cookie = %q", entry.ResponseHeaders["set-cookie"])
	}
}

type recordingObserver struct {
	steps []string
}

func (o *recordingObserver) ObserveCall(step string, status int, d time.Duration) {
	o.steps = append(o.steps, step)
}

func TestTracerObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	obs := &recordingObserver{}
	tr := New(WithHTTPClient(srv.Client()), WithObserver(obs))
	log := NewLog()
	for _, step := range []string{"a", "b"} {
		if _, _, err := tr.Do(context.Background(), log, step, srv.URL, RequestSpec{}); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if strings.Join(obs.steps, ",") != "a,b" {
		t.Errorf("observed = %v", obs.steps)
	}
	entries := log.Entries()
	if entries[0].Step != "a" || entries[1].Step != "b" {
		t.Errorf("log order = %v, %v", entries[0].Step, entries[1].Step)
	}
}

func TestEntryWithStepPrefixDoesNotMutate(t *testing.T) {
	e := Entry{Step: "1. Get Authentication Challenge"}
	p := e.WithStepPrefix("[Guarnição 01] ")
	if e.Step != "1. Get Authentication Challenge" {
		t.Errorf("original mutated: %q", e.Step)
	}
	if p.Step != "[Guarnição 01] 1. Get Authentication Challenge" {
		t.Errorf("prefixed = %q", p.Step)
	}
}
