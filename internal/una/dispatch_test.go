package una

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/testutil"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func mustPayload(t *testing.T, file *domain.Attachment, caption string) domain.Payload {
	t.Helper()
	p, err := domain.NewPayload(file, caption)
	if err != nil {
		t.Fatalf("NewPayload() error = %v", err)
	}
	return p
}

func TestDeliverText(t *testing.T) {
	fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
	client := newTestClient(t, fake, WithMessageIDs(sequentialIDs()))

	log := tracer.NewLog()
	res, err := client.Deliver(context.Background(), log, Token(fake.Token), "355067", mustPayload(t, nil, "  Dirija-se ao local  "))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if res.Mode != ModeText || res.MessageID != "msg-1" {
		t.Errorf("result = %+v", res)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 || reqs[0].Path != testutil.UNAMessagesPath {
		t.Fatalf("paths = %v", fake.Paths())
	}
	if reqs[0].Cookie != "__iunasid=tok-123;" {
		t.Errorf("Cookie = %q", reqs[0].Cookie)
	}
	msg, _ := reqs[0].JSON["chatMessage"].(map[string]any)
	if msg["chat"] != "355067" || msg["text"] != "Dirija-se ao local" || msg["id"] != "msg-1" {
		t.Errorf("chatMessage = %v", msg)
	}

	entries := log.Entries()
	if len(entries) != 1 || entries[0].Step != StepSendText {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].RequestHeaders["Cookie"] != "__iunasid=tok-123;" {
		t.Errorf("recorded headers = %v", entries[0].RequestHeaders)
	}
}

func TestDeliverFile(t *testing.T) {
	file := &domain.Attachment{Name: "foto.jpg", ContentType: "image/jpeg", Data: []byte("jpegbytes")}

	tests := []struct {
		name     string
		caption  string
		wantStep string
		wantText any
	}{
		{name: "file only", caption: "", wantStep: StepSendFile, wantText: nil},
		{name: "blank caption", caption: "   ", wantStep: StepSendFile, wantText: nil},
		{name: "file with caption", caption: " suspeito de camiseta azul ", wantStep: StepSendFileCaption, wantText: "suspeito de camiseta azul"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
			client := newTestClient(t, fake, WithMessageIDs(sequentialIDs()))

			log := tracer.NewLog()
			res, err := client.Deliver(context.Background(), log, Token(fake.Token), "356052", mustPayload(t, file, tt.caption))
			if err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if res.Mode != ModeFile {
				t.Errorf("Mode = %s, want file", res.Mode)
			}

			reqs := fake.Requests()
			if len(reqs) != 1 || reqs[0].Path != testutil.UNAAttachmentPath {
				t.Fatalf("paths = %v", fake.Paths())
			}
			parts := reqs[0].Parts
			if len(parts) != 2 {
				t.Fatalf("parts = %d, want 2", len(parts))
			}
			if parts[0].Name != "file" || parts[0].FileName != "foto.jpg" || parts[0].Body != "jpegbytes" {
				t.Errorf("first part = %+v, want the file", parts[0])
			}
			if parts[0].ContentType != "image/jpeg" {
				t.Errorf("file content type = %q", parts[0].ContentType)
			}
			if parts[1].Name != "chatMessage" {
				t.Errorf("second part = %q, want chatMessage", parts[1].Name)
			}

			var descriptor map[string]any
			if err := json.Unmarshal([]byte(parts[1].Body), &descriptor); err != nil {
				t.Fatalf("chatMessage not JSON: %v", err)
			}
			if descriptor["to"] != "356052" || descriptor["id"] != "msg-1" {
				t.Errorf("descriptor = %v", descriptor)
			}
			if got := descriptor["text"]; got != tt.wantText {
				t.Errorf("text = %v, want %v", got, tt.wantText)
			}

			if entries := log.Entries(); len(entries) != 1 || entries[0].Step != tt.wantStep {
				t.Errorf("entries = %+v, want step %q", entries, tt.wantStep)
			}
		})
	}
}

func TestSendFileCaptionIsTrimmed(t *testing.T) {
	fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
	client := newTestClient(t, fake)

	file := &domain.Attachment{Name: "a.txt", Data: []byte("x")}
	if _, err := client.SendFile(context.Background(), tracer.NewLog(), Token(fake.Token), "1", file, "\t\n"); err != nil {
		t.Fatalf("SendFile() error = %v", err)
	}

	var descriptor map[string]any
	_ = json.Unmarshal([]byte(fake.Requests()[0].Parts[1].Body), &descriptor)
	if _, ok := descriptor["text"]; ok {
		t.Errorf("descriptor = %v, want no text field", descriptor)
	}
	if ct := fake.Requests()[0].Parts[0].ContentType; ct != "application/octet-stream" {
		t.Errorf("default content type = %q", ct)
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
	client := newTestClient(t, fake)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		res, err := client.SendText(context.Background(), tracer.NewLog(), Token(fake.Token), "1", "oi")
		if err != nil {
			t.Fatalf("SendText() error = %v", err)
		}
		if seen[res.MessageID] {
			t.Fatalf("message id %s reused", res.MessageID)
		}
		seen[res.MessageID] = true
	}
}

func TestDeliverFailures(t *testing.T) {
	file := &domain.Attachment{Name: "foto.jpg", Data: []byte("x")}

	tests := []struct {
		name       string
		setup      func(*testutil.FakeUNA)
		token      Token
		file       *domain.Attachment
		wantErr    *domain.RelayError
		wantStatus int
	}{
		{
			name:       "text rejected",
			setup:      func(f *testutil.FakeUNA) { f.MessageStatus = http.StatusBadRequest },
			wantErr:    domain.ErrTextSendFailed,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "attachment rejected",
			setup:      func(f *testutil.FakeUNA) { f.AttachmentStatus = http.StatusRequestEntityTooLarge },
			file:       file,
			wantErr:    domain.ErrFileSendFailed,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "stale token",
			token:      "expired",
			wantErr:    domain.ErrTextSendFailed,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
			if tt.setup != nil {
				tt.setup(fake)
			}
			token := tt.token
			if token == "" {
				token = Token(fake.Token)
			}

			log := tracer.NewLog()
			_, err := newTestClient(t, fake).Deliver(context.Background(), log, token, "1", mustPayload(t, tt.file, "oi"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deliver() error = %v, want %s", err, tt.wantErr.Kind)
			}
			re, _ := domain.AsRelayError(err)
			if re.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", re.StatusCode, tt.wantStatus)
			}
			if log.Len() != 1 {
				t.Errorf("log length = %d, want 1", log.Len())
			}
		})
	}
}

func TestDeliverEmptyPayload(t *testing.T) {
	fake := testutil.NewFakeUNA(t, "pesto", "Aa123456")
	_, err := newTestClient(t, fake).Deliver(context.Background(), tracer.NewLog(), Token(fake.Token), "1", domain.Payload{})
	if !errors.Is(err, domain.ErrEmptyPayload) {
		t.Fatalf("Deliver() error = %v, want empty payload", err)
	}
	if len(fake.Requests()) != 0 {
		t.Errorf("upstream called %d times", len(fake.Requests()))
	}
}
