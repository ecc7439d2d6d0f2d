package testutil

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// UNA endpoint paths served by FakeUNA.
const (
	UNALoginPath      = "/una/auth/v1/integration/login"
	UNAChallengePath  = "/una/auth/v1/integration/challenge"
	UNAMessagesPath   = "/una/history/v1/chatMessages"
	UNAAttachmentPath = "/una/history/v1/chatMessages/attachment"
)

// FormPart is one part of a multipart request seen by FakeUNA.
type FormPart struct {
	Name        string
	FileName    string
	ContentType string
	Body        string
}

// UNARequest is a request recorded by FakeUNA.
type UNARequest struct {
	Method string
	Path   string
	Cookie string
	JSON   map[string]any
	Parts  []FormPart
}

// FakeUNA is an in-process stand-in for the UNA integration API. It checks
// the challenge response hash and the session cookie the same way the real
// platform does. Flip the failure switches before issuing requests.
type FakeUNA struct {
	Server *httptest.Server

	Login     string
	Password  string
	Challenge string
	Token     string

	OmitChallenge    bool
	RejectChallenge  bool
	OmitCookie       bool
	ForeignCookie    bool
	MessageStatus    int
	AttachmentStatus int

	mu       sync.Mutex
	requests []UNARequest
}

// NewFakeUNA starts a fake platform that accepts login/password.
func NewFakeUNA(t testing.TB, login, password string) *FakeUNA {
	t.Helper()
	f := &FakeUNA{
		Login:     login,
		Password:  password,
		Challenge: "c0ffee",
		Token:     "tok-123",
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeUNA) URL() string {
	return f.Server.URL
}

// Requests returns the recorded requests in arrival order.
func (f *FakeUNA) Requests() []UNARequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UNARequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RotateToken makes the fake issue and accept only token from now on.
func (f *FakeUNA) RotateToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Token = token
}

func (f *FakeUNA) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Token
}

// Paths returns the recorded request paths in arrival order.
func (f *FakeUNA) Paths() []string {
	reqs := f.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Path
	}
	return out
}

func hashHex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (f *FakeUNA) record(r *http.Request) UNARequest {
	rec := UNARequest{Method: r.Method, Path: r.URL.Path, Cookie: r.Header.Get("Cookie")}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if mr, err := r.MultipartReader(); err == nil {
			for {
				p, err := mr.NextPart()
				if err != nil {
					break
				}
				body, _ := io.ReadAll(p)
				rec.Parts = append(rec.Parts, FormPart{
					Name:        p.FormName(),
					FileName:    p.FileName(),
					ContentType: p.Header.Get("Content-Type"),
					Body:        string(body),
				})
			}
		}
	} else {
		_ = json.NewDecoder(r.Body).Decode(&rec.JSON)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *FakeUNA) serve(w http.ResponseWriter, r *http.Request) {
	rec := f.record(r)

	switch rec.Path {
	case UNALoginPath:
		if f.OmitChallenge {
			writeJSON(w, http.StatusOK, map[string]any{"error": "unknown login"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"challenge": f.Challenge})

	case UNAChallengePath:
		want := hashHex(f.Challenge + hashHex(f.Login+f.Password))
		if f.RejectChallenge || rec.JSON["response"] != want || rec.JSON["login"] != f.Login {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid challenge response"})
			return
		}
		switch {
		case f.OmitCookie:
		case f.ForeignCookie:
			w.Header().Add("Set-Cookie", "JSESSIONID=abc; Path=/")
		default:
			w.Header().Add("Set-Cookie", "lang=pt-BR; Path=/")
			w.Header().Add("Set-Cookie", fmt.Sprintf("__iunasid=%s; Path=/; HttpOnly", f.currentToken()))
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})

	case UNAMessagesPath:
		if !f.authorized(rec) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "session expired"})
			return
		}
		status := f.MessageStatus
		if status == 0 {
			status = http.StatusOK
		}
		msg, _ := rec.JSON["chatMessage"].(map[string]any)
		writeJSON(w, status, map[string]any{"id": msg["id"], "status": "SENT"})

	case UNAAttachmentPath:
		if !f.authorized(rec) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "session expired"})
			return
		}
		status := f.AttachmentStatus
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{"status": "SENT", "parts": len(rec.Parts)})

	default:
		http.NotFound(w, r)
	}
}

func (f *FakeUNA) authorized(rec UNARequest) bool {
	return rec.Cookie == "__iunasid="+f.currentToken()+";"
}
