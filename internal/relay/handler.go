package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/server"
)

// SendFilePath is where the relay endpoint is mounted.
const SendFilePath = "/api/send-file"

// Form field names of the relay endpoint.
const (
	FieldFile        = "file"
	FieldUserID      = "userId"
	FieldMessage     = "message"
	FieldRecipientID = "recipientId"
)

// DefaultMaxUpload bounds request bodies when no limit is configured.
const DefaultMaxUpload = 32 << 20

// Handler serves POST /api/send-file.
type Handler struct {
	svc       *Service
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a handler accepting uploads up to maxUpload bytes.
func NewHandler(svc *Service, maxUpload int64, logger *slog.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// HandleSendFile relays one submission and writes the RelayResult envelope.
func (h *Handler) HandleSendFile(w http.ResponseWriter, r *http.Request) {
	file, err := ReadUpload(w, r, h.maxUpload)
	if err != nil {
		server.AddError(r.Context(), err)
		server.WriteError(w, http.StatusBadRequest, "Falha ao ler o formulário")
		return
	}

	req := Request{
		RecipientID: r.FormValue(FieldUserID),
		File:        file,
		Message:     r.FormValue(FieldMessage),
	}
	server.AddLogField(r.Context(), "recipient_id", req.RecipientID)

	res := h.svc.Relay(r.Context(), req)
	server.WriteJSON(w, StatusFor(res), res)
}

// StatusFor maps a RelayResult onto the endpoint's HTTP status.
func StatusFor(res domain.RelayResult) int {
	if res.Success {
		return http.StatusOK
	}
	re := &domain.RelayError{Kind: res.ErrorKind, Category: domain.CategoryOf(res.ErrorKind)}
	return re.HTTPStatusCode()
}

// ReadUpload parses a multipart (or url-encoded) body and returns the
// uploaded file, or nil when none was sent. A missing or generic content
// type is replaced by the sniffed one. A non-positive maxUpload means
// DefaultMaxUpload.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxUpload int64) (*domain.Attachment, error) {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	f, hdr, err := r.FormFile(FieldFile)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file part: %w", err)
	}
	defer f.Close()

	return readAttachment(f, hdr)
}

func readAttachment(f multipart.File, hdr *multipart.FileHeader) (*domain.Attachment, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file part: %w", err)
	}

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	return &domain.Attachment{Name: hdr.Filename, ContentType: contentType, Data: data}, nil
}
