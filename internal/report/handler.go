package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/go-playground/validator/v10"

	"github.com/gmfloripa/patrol-relay/internal/metrics"
	"github.com/gmfloripa/patrol-relay/internal/server"
)

// SendReportPath is the route served by Handler.
const SendReportPath = "/api/send-report"

var validate = validator.New()

// Mailer renders reports and hands them to a Sender.
type Mailer struct {
	renderer *Renderer
	sender   Sender
	from     *gomail.Address
	to       []*gomail.Address
	now      func() time.Time
}

// NewMailer parses the configured addresses. to must not be empty.
func NewMailer(renderer *Renderer, sender Sender, from string, to []string) (*Mailer, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if len(to) == 0 {
		return nil, errors.New("no report recipients configured")
	}
	toAddrs := make([]*gomail.Address, 0, len(to))
	for _, addr := range to {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient address %q: %w", addr, err)
		}
		toAddrs = append(toAddrs, (*gomail.Address)(a))
	}
	return &Mailer{
		renderer: renderer,
		sender:   sender,
		from:     (*gomail.Address)(fromAddr),
		to:       toAddrs,
		now:      time.Now,
	}, nil
}

// Send renders rep and delivers it, returning the message id.
func (m *Mailer) Send(ctx context.Context, rep Report) (string, error) {
	content, err := m.renderer.Render(rep)
	if err != nil {
		return "", err
	}
	msg, err := Compose(m.from, m.to, content, m.now())
	if err != nil {
		return "", err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Handler serves POST /api/send-report.
type Handler struct {
	mailer *Mailer
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(mailer *Mailer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mailer: mailer, logger: logger}
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		EmailID string `json:"emailId"`
	} `json:"data"`
}

// HandleSendReport decodes a report, emails it and answers with the email id.
func (h *Handler) HandleSendReport(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		server.AddError(r.Context(), err)
		server.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	rep := FromRequest(body, h.mailer.now().In(h.mailer.renderer.loc))
	if err := validate.Struct(rep); err != nil {
		server.WriteError(w, http.StatusBadRequest, "Campo obrigatório não informado: victimName")
		return
	}

	id, err := h.mailer.Send(r.Context(), rep)
	if err != nil {
		metrics.IncReport(false)
		server.AddError(r.Context(), err)
		h.logger.ErrorContext(r.Context(), "report email failed", slog.String("error", err.Error()))
		server.WriteError(w, http.StatusInternalServerError, "Falha ao enviar email: "+err.Error())
		return
	}

	metrics.IncReport(true)
	h.logger.InfoContext(r.Context(), "report email sent",
		slog.String("email_id", id),
		slog.Bool("immediate", rep.IsImmediate))

	resp := sendResponse{Success: true, Message: "Relatório enviado com sucesso"}
	resp.Data.EmailID = id
	server.WriteJSON(w, http.StatusOK, resp)
}
