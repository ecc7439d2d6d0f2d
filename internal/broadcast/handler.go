package broadcast

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/server"
)

// Routes served by Handler.
const (
	BroadcastPath  = "/api/broadcast"
	RecipientsPath = "/api/recipients"
)

// Handler serves the broadcast and roster endpoints.
type Handler struct {
	controller *Controller
	roster     *domain.RosterHolder
	maxUpload  int64
	logger     *slog.Logger
}

// NewHandler creates a broadcast handler accepting uploads up to maxUpload
// bytes, or relay.DefaultMaxUpload when maxUpload is not positive.
func NewHandler(controller *Controller, roster *domain.RosterHolder, maxUpload int64, logger *slog.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = relay.DefaultMaxUpload
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{controller: controller, roster: roster, maxUpload: maxUpload, logger: logger}
}

// HandleBroadcast handles POST /api/broadcast with multipart fields file,
// message and one recipientId per selected unit.
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	file, err := relay.ReadUpload(w, r, h.maxUpload)
	if err != nil {
		server.AddError(r.Context(), err)
		server.WriteError(w, http.StatusBadRequest, "Falha ao ler o formulário")
		return
	}

	ids := r.Form[relay.FieldRecipientID]
	server.AddLogField(r.Context(), "recipients", strconv.Itoa(len(ids)))

	outcome, err := h.controller.Broadcast(r.Context(), ids, file, r.FormValue(relay.FieldMessage))
	if err != nil {
		server.AddError(r.Context(), err)
		status := http.StatusInternalServerError
		if re, ok := domain.AsRelayError(err); ok {
			status = re.HTTPStatusCode()
		}
		server.WriteError(w, status, domain.MessageOf(err))
		return
	}

	server.AddLogField(r.Context(), "broadcast_status", string(outcome.Status))
	server.WriteJSON(w, http.StatusOK, outcome)
}

// HandleRecipients handles GET /api/recipients.
func (h *Handler) HandleRecipients(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"recipients": h.roster.Roster().All(),
	})
}
