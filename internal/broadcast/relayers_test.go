package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/server"
	"github.com/gmfloripa/patrol-relay/internal/testutil"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
	"github.com/gmfloripa/patrol-relay/internal/una"
)

type stack struct {
	fake    *testutil.FakeUNA
	service *relay.Service
	roster  *domain.RosterHolder
	server  *httptest.Server
}

// newStack wires a relay server in front of a fake UNA platform the way
// serve does, with broadcast uploads capped at maxUpload.
func newStack(t *testing.T, maxUpload int64) *stack {
	t.Helper()
	fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
	client := una.NewClient(una.Credentials{Login: "pesto", Password: "Aa123456"},
		una.WithBaseURL(fake.URL()),
		una.WithTracer(tracer.New(tracer.WithHTTPClient(fake.Server.Client()))))
	svc := relay.NewService(una.Reauthenticate{Auth: client}, client)
	roster := defaultRoster(t)

	r := chi.NewRouter()
	r.Post(relay.SendFilePath, relay.NewHandler(svc, maxUpload, nil).HandleSendFile)
	h := NewHandler(NewController(LocalRelayer{Service: svc}, roster), roster, maxUpload, nil)
	r.Post(BroadcastPath, h.HandleBroadcast)
	r.Get(RecipientsPath, h.HandleRecipients)

	srv := httptest.NewServer(server.RequestIDMiddleware(r))
	t.Cleanup(srv.Close)

	return &stack{fake: fake, service: svc, roster: roster, server: srv}
}

func mustPayload(t *testing.T, file *domain.Attachment, caption string) domain.Payload {
	t.Helper()
	p, err := domain.NewPayload(file, caption)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

type broadcastForm struct {
	message    string
	recipients []string
	fileName   string
	file       []byte
}

func (f broadcastForm) encode(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if f.fileName != "" {
		fw, err := mw.CreateFormFile(relay.FieldFile, f.fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(f.file); err != nil {
			t.Fatal(err)
		}
	}
	if f.message != "" {
		if err := mw.WriteField(relay.FieldMessage, f.message); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range f.recipients {
		if err := mw.WriteField(relay.FieldRecipientID, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (s *stack) postBroadcast(t *testing.T, form broadcastForm) *http.Response {
	t.Helper()
	body, contentType := form.encode(t)
	resp, err := s.server.Client().Post(s.server.URL+BroadcastPath, contentType, body)
	if err != nil {
		t.Fatalf("POST %s: %v", BroadcastPath, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPRelayer(t *testing.T) {
	s := newStack(t, 0)
	r := NewHTTPRelayer(s.server.URL+"/", WithHTTPClient(s.server.Client()), WithRequestID("cli-run-1"))

	file := &domain.Attachment{Name: "mapa.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}
	res, err := r.Relay(context.Background(), "356055", mustPayload(t, file, "rota de fuga"))
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if !res.Success || res.Message != "Arquivo e mensagem enviados com sucesso" {
		t.Errorf("result = success=%v message=%q error=%q", res.Success, res.Message, res.Error)
	}
	if len(res.Logs) != 3 {
		t.Fatalf("got %d log entries, want 3", len(res.Logs))
	}
	if res.Logs[2].Step != una.StepSendFileCaption {
		t.Errorf("step = %q", res.Logs[2].Step)
	}

	if ct := s.fake.Requests()[2].Parts[0].ContentType; ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if got := r.Endpoint(); got != s.server.URL+relay.SendFilePath {
		t.Errorf("Endpoint() = %q", got)
	}
}

func TestHTTPRelayerDecodesFailureEnvelope(t *testing.T) {
	s := newStack(t, 0)
	s.fake.RejectChallenge = true
	r := NewHTTPRelayer(s.server.URL, WithHTTPClient(s.server.Client()))

	res, err := r.Relay(context.Background(), "355067", mustPayload(t, nil, "oi"))
	if err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	if res.Success || res.ErrorKind != domain.KindChallengeRejected || len(res.Logs) != 2 {
		t.Errorf("result = success=%v kind=%s logs=%d", res.Success, res.ErrorKind, len(res.Logs))
	}
}

func TestHTTPRelayerTransportError(t *testing.T) {
	s := newStack(t, 0)
	r := NewHTTPRelayer(s.server.URL, WithHTTPClient(s.server.Client()))
	s.server.Close()

	if _, err := r.Relay(context.Background(), "355067", mustPayload(t, nil, "oi")); err == nil {
		t.Error("expected transport error")
	}
}

func TestHTTPRelayerUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPRelayer(srv.URL).Relay(context.Background(), "1", mustPayload(t, nil, "oi"))
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Errorf("error = %v, want mention of status 502", err)
	}
}

func TestControllerOverHTTP(t *testing.T) {
	s := newStack(t, 0)

	c := NewController(NewHTTPRelayer(s.server.URL, WithHTTPClient(s.server.Client())), s.roster)
	outcome, err := c.Broadcast(context.Background(), []string{"355067", "356052"}, nil, "Reforço solicitado")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	if !outcome.Success || len(outcome.Logs) != 6 {
		t.Fatalf("outcome = success=%v logs=%d", outcome.Success, len(outcome.Logs))
	}
	if want := "[Guarnição 02] " + una.StepSendText; outcome.Logs[5].Step != want {
		t.Errorf("step = %q, want %q", outcome.Logs[5].Step, want)
	}
}

func TestHandleBroadcast(t *testing.T) {
	photo := bytes.Repeat([]byte("x"), 4096)

	tests := []struct {
		name        string
		maxUpload   int64
		form        broadcastForm
		wantStatus  int
		wantError   string
		wantIDs     []string
		wantUpCalls int
	}{
		{
			name:        "text with default upload limit",
			maxUpload:   0,
			form:        broadcastForm{message: "Ocorrência na Av. Beira-Mar", recipients: []string{"355067", "356059"}},
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"355067", "356059"},
			wantUpCalls: 6,
		},
		{
			name:        "file with default upload limit",
			maxUpload:   0,
			form:        broadcastForm{recipients: []string{"356052"}, fileName: "foto.jpg", file: photo},
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"356052"},
			wantUpCalls: 3,
		},
		{
			name:        "file within configured limit",
			maxUpload:   1 << 20,
			form:        broadcastForm{message: "placa", recipients: []string{"356052"}, fileName: "foto.jpg", file: photo},
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"356052"},
			wantUpCalls: 3,
		},
		{
			name:       "file over configured limit",
			maxUpload:  64,
			form:       broadcastForm{recipients: []string{"356052"}, fileName: "foto.jpg", file: photo},
			wantStatus: http.StatusBadRequest,
			wantError:  "Falha ao ler o formulário",
		},
		{
			name:       "no recipients",
			maxUpload:  0,
			form:       broadcastForm{message: "oi"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Selecione pelo menos uma viatura.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t, tt.maxUpload)

			resp := s.postBroadcast(t, tt.form)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if n := len(s.fake.Requests()); n != tt.wantUpCalls {
				t.Errorf("made %d upstream calls, want %d", n, tt.wantUpCalls)
			}

			if tt.wantError != "" {
				var body server.ErrorBody
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatal(err)
				}
				if body.Success || body.Error != tt.wantError {
					t.Errorf("body = %+v, want error %q", body, tt.wantError)
				}
				return
			}

			var outcome domain.BroadcastOutcome
			if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
				t.Fatal(err)
			}
			if !outcome.Success {
				t.Errorf("outcome failed: %s", outcome.Summary)
			}
			if len(outcome.Results) != len(tt.wantIDs) {
				t.Fatalf("got %d results, want %d", len(outcome.Results), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got := outcome.Results[i].Recipient.ID; got != id {
					t.Errorf("result %d recipient = %s, want %s", i, got, id)
				}
			}
		})
	}
}

func TestHandleBroadcastDefaultUploadLimit(t *testing.T) {
	stub := &stubRelayer{}
	roster := defaultRoster(t)
	h := NewHandler(NewController(stub, roster), roster, 0, nil)

	body, contentType := broadcastForm{message: "oi", recipients: []string{"355067"}}.encode(t)
	req := httptest.NewRequest(http.MethodPost, BroadcastPath, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.HandleBroadcast(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(stub.calls) != 1 || stub.calls[0] != "355067" {
		t.Errorf("calls = %v", stub.calls)
	}
}

func TestHandleRecipients(t *testing.T) {
	s := newStack(t, 0)

	resp, err := s.server.Client().Get(s.server.URL + RecipientsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Recipients []domain.Recipient `json:"recipients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Recipients) != 10 {
		t.Fatalf("got %d recipients, want 10", len(body.Recipients))
	}
	if want := (domain.Recipient{ID: "355067", Name: "Guarnição 01", Code: "01"}); body.Recipients[0] != want {
		t.Errorf("first recipient = %+v, want %+v", body.Recipients[0], want)
	}
}
